package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBlob is an opaque JSON document column (Job.data, Job.result).
// Unlike a map-typed JSONB column, it preserves
// whatever shape the caller or worker produced — object, array, or
// scalar — since the control plane never inspects payload contents.
type JSONBlob json.RawMessage

// Scan implements sql.Scanner.
func (j *JSONBlob) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case string:
		*j = JSONBlob(v)
	case []byte:
		cp := make([]byte, len(v))
		copy(cp, v)
		*j = JSONBlob(cp)
	default:
		return errors.New("domain: unsupported type for JSONBlob")
	}
	return nil
}

// Value implements driver.Valuer.
func (j JSONBlob) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// MarshalJSON passes the raw document through unmodified.
func (j JSONBlob) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores data verbatim.
func (j *JSONBlob) UnmarshalJSON(data []byte) error {
	*j = append((*j)[0:0], data...)
	return nil
}
