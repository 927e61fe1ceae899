package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const archivePrefix = "archive/"

// ArchivePath maps a record id to its cold-tier object path. The mapping is
// deterministic and stable for the life of the record, so lookups never need
// a separate index.
func ArchivePath(id string) string {
	return archivePrefix + id + ".json"
}

// ValidID reports whether an id is usable as both a primary key and an
// archive path segment.
func ValidID(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}

// archiveEnvelope is the serialized form stored in the cold tier. Business
// payload only; hot-tier bookkeeping columns stay out of the archive object.
type archiveEnvelope struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   datatypes.JSONMap `json:"payload"`
}

// MarshalArchive serializes a record for the cold tier. The same record
// always marshals to the same bytes, which is what makes re-archiving an
// already-archived record overwrite-idempotent.
func MarshalArchive(r *Record) ([]byte, error) {
	return json.Marshal(archiveEnvelope{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC(),
		Payload:   r.Payload,
	})
}

// UnmarshalArchive restores a record from its cold-tier form.
func UnmarshalArchive(data []byte) (*Record, error) {
	var env archiveEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &Record{
		ID:        env.ID,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}, nil
}
