package measure

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Measure is a stored, named measure definition. It maps to the
// measure_definition table.
type Measure struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	Definition  Definition `db:"definition" json:"definition"`
	VersionID   int        `db:"version_id" json:"version_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// encodeDefinition renders a definition for the definition column. The
// encoding keeps property order.
func encodeDefinition(def Definition) (string, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
