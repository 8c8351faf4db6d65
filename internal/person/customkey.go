package person

import (
	"errors"
	"strings"
)

// Sentinel errors for custom attribute key parsing, grounded on the
// teacher's dataset-URN parser (canonicalization.ParseDatasetURN):
// the same split-validate-normalize shape, applied to a different
// delimiter and a different identity concept (an attribute key
// namespaced by its recording source rather than a dataset location).
var (
	ErrCustomKeyMissingDelimiter = errors.New("invalid custom attribute key: missing ':' delimiter")
	ErrCustomKeyEmptyNamespace   = errors.New("invalid custom attribute key: empty namespace")
	ErrCustomKeyEmptyName        = errors.New("invalid custom attribute key: empty name")
)

// CanonicalizeCustomKey builds a canonical "namespace:name" key for a
// Custom attribute type from a free-form namespace and name.
//
// Canonicalization lower-cases and trims the namespace so that two
// systems recording the same custom attribute under differently-cased
// namespaces ("HR_SYSTEM:employee_id" vs "hr_system:employee_id") are
// recognized as the same identity pair component.
func CanonicalizeCustomKey(namespace, name string) string {
	ns := strings.ToLower(strings.TrimSpace(namespace))
	n := strings.TrimSpace(name)

	return ns + ":" + n
}

// ParseCustomKey splits a canonical custom attribute key into its
// namespace and name components.
func ParseCustomKey(key string) (namespace, name string, err error) {
	idx := strings.Index(key, ":")
	if idx == -1 {
		return "", "", ErrCustomKeyMissingDelimiter
	}

	namespace = key[:idx]
	name = key[idx+1:]

	if namespace == "" {
		return "", "", ErrCustomKeyEmptyNamespace
	}

	if name == "" {
		return "", "", ErrCustomKeyEmptyName
	}

	return namespace, name, nil
}
