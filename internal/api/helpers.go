package api

import (
	"encoding/json"

	"github.com/integritystudio/alephauto/internal/domain"
)

// marshalData encodes a trigger request's parameters map as the Job's
// opaque data payload.
func marshalData(data map[string]any) (domain.JSONBlob, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return domain.JSONBlob(b), nil
}

func clampLimit(n, max int) int {
	if n <= 0 || n > max {
		return max
	}
	return n
}
