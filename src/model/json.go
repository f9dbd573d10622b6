package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice is a []string stored as a jsonb column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value interface{}, target interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, target)
	case string:
		return json.Unmarshal([]byte(v), target)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
}
