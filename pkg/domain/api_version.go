package domain

import (
	"fmt"
)

// APIVersion is the version a token was minted for. Validity is enforced
// at parse time so the rest of the code never sees an unknown version.
type APIVersion string

const (
	APIVersionV1 APIVersion = "v1"
)

var knownVersions = map[APIVersion]struct{}{
	APIVersionV1: {},
}

// ParseAPIVersion rejects versions this server does not know about.
func ParseAPIVersion(s string) (APIVersion, error) {
	v := APIVersion(s)
	if _, ok := knownVersions[v]; !ok {
		return "", fmt.Errorf("unknown API version: %s", s)
	}
	return v, nil
}

func (v APIVersion) String() string {
	return string(v)
}

// IsNil reports whether the version is empty.
func (v APIVersion) IsNil() bool {
	return v == ""
}

// DefaultVersion is stamped into new tokens.
func DefaultVersion() APIVersion {
	return APIVersionV1
}
