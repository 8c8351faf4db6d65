package snapshot

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/persondomain/persond/internal/person"
)

func TestPostgresSnapshotStoreGetCorruptPayloadRecordsMetric(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	before := CorruptionFallbacks()

	store, mock := newMockSnapshotStore(t)

	id, err := person.NewID()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT version, from_sequence, state FROM person_snapshots").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "from_sequence", "state"}).
			AddRow(uint64(1), int64(1), []byte(`not json`)))

	_, err = store.Get(context.Background(), id)
	require.Error(t, err)

	require.Equal(t, before+1, CorruptionFallbacks())
}
