package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexString accepts a JSON string, number, boolean or null and keeps its text.
// Null becomes "". Objects and arrays keep their raw JSON.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case isNull(data):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(data)
	}
	return nil
}

// flexBool accepts true/false, their string forms, numbers and null
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*f = false
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	if b, err := strconv.ParseBool(text); err == nil {
		*f = flexBool(b)
		return nil
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		*f = n != 0
		return nil
	}
	*f = false
	return nil
}

func isNull(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}
