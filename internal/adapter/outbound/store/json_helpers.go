package store

import (
	"encoding/json"
	"fmt"
)

func jsonMarshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: marshal string slice: %w", err)
	}
	return string(b), nil
}

func jsonUnmarshalStrings(s string, out *[]string) error {
	if s == "" {
		*out = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("store: unmarshal string slice: %w", err)
	}
	return nil
}
