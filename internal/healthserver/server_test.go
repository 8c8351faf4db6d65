package healthserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	err error
}

func (c fakeChecker) HealthCheck(context.Context) error { return c.err }

func TestHealthServerLivenessAlwaysOK(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	srv := New(Config{Port: 0}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body livenessBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "alive", body.Status)
}

func TestHealthServerReadinessOKWhenAllChecksPass(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	srv := New(Config{Port: 0}, map[string]Checker{
		"eventstore": fakeChecker{},
		"broker":     fakeChecker{},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body readinessBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ready", body.Status)
	require.Equal(t, "ok", body.Checks["eventstore"])
}

func TestHealthServerReadinessFailsWhenADependencyIsDown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	srv := New(Config{Port: 0}, map[string]Checker{
		"eventstore": fakeChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body readinessBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "not_ready", body.Status)
	require.Equal(t, "connection refused", body.Checks["eventstore"])
}
