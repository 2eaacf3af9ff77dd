package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyPayload marks a message that carried no value.
var ErrEmptyPayload = errors.New("empty payload")

// Decode unmarshals a JSON payload into T. Failures are permanent since
// redelivering the same bytes cannot fix them.
func Decode[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, Permanent(ErrEmptyPayload)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, Permanent(fmt.Errorf("decode %T: %w", v, err))
	}
	return v, nil
}
