package consolidation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// integrityPayload is marshaled with its fields in declaration order, which
// is the same order json.Marshal emits struct fields in, fixing the key
// order as {"primaryId":..., "duplicateIds":[...], "timestamp":<ISO-8601>}.
type integrityPayload struct {
	PrimaryID    string   `json:"primaryId"`
	DuplicateIDs []string `json:"duplicateIds"`
	Timestamp    string   `json:"timestamp"`
}

// GenerateDataIntegrityHash computes the consolidation rollback token: a
// lowercase hex SHA-256 over the canonical JSON descriptor.
func GenerateDataIntegrityHash(primaryID string, duplicateIDs []string, timestamp time.Time) string {
	ids := duplicateIDs
	if ids == nil {
		ids = []string{}
	}
	p := integrityPayload{
		PrimaryID:    primaryID,
		DuplicateIDs: ids,
		Timestamp:    timestamp.UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(p)
	if err != nil {
		// Marshal of a struct with only strings/[]string never fails.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
