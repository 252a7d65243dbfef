package eventstore

import (
	"fmt"
	"strconv"
)

// ParseVersionID converts a cursor token of a version-numbered backend to its version.
// InitialID maps to 0.
func ParseVersionID(id string) (int64, error) {
	if id == "" || id == InitialID {
		return 0, nil
	}

	version, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, &InvalidIDError{ID: id, Err: err}
	}
	if version < 0 {
		return 0, &InvalidIDError{ID: id, Err: fmt.Errorf("negative version %d", version)}
	}

	return version, nil
}

// VersionID converts a version to its cursor token.
func VersionID(version int64) string {
	return strconv.FormatInt(version, 10)
}
