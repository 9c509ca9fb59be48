package graph

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ID is the stable identity of a scene entity. Categories store IDs, never
// pointers, so entities can reference each other without ownership.
type ID uuid.UUID

// ZeroID is the empty ID, used to mean "no entity".
var ZeroID = ID(uuid.Nil)

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical string form produced by String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ZeroID, err
	}
	return ID(u), nil
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ZeroID
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first 8 hex characters, for logs and error messages.
func (id ID) Short() string {
	return id.String()[:8]
}

// MarshalJSON encodes the ID as its canonical string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the canonical string form.
func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
