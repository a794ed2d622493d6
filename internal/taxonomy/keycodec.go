package taxonomy

import (
	"fmt"
	"strings"
)

// Key is the composite partition/sort key of a taxonomy store record.
type Key struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

const (
	rubroPrefix = "RUBRO#"
	// MetadataSK is the sort key of the single metadata row per rubro.
	MetadataSK = "METADATA"
)

// EncodeKey derives the store key for a canonical id.
func EncodeKey(id string) Key {
	return Key{PK: rubroPrefix + id, SK: MetadataSK}
}

// DecodeKey recovers the canonical id embedded in a store key.
func DecodeKey(k Key) (string, error) {
	if !strings.HasPrefix(k.PK, rubroPrefix) {
		return "", fmt.Errorf("key %q lacks %s prefix", k.PK, rubroPrefix)
	}
	id := strings.TrimPrefix(k.PK, rubroPrefix)
	if id == "" {
		return "", fmt.Errorf("key %q has empty rubro id", k.PK)
	}
	return id, nil
}
