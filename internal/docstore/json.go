package docstore

import (
	"bytes"
	"encoding/json"
)

// DecodeJSON decodes a stored JSON object, keeping numbers as json.Number.
// A JSON null decodes to empty fields.
func DecodeJSON(raw []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = Fields{}
	}
	return fields, nil
}
