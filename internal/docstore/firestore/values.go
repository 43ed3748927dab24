package firestore

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	fs "google.golang.org/api/firestore/v1"

	"spendbook/internal/docstore"
)

// encodeFields converts a document body to Firestore typed values.
func encodeFields(fields docstore.Fields) (map[string]fs.Value, error) {
	out := make(map[string]fs.Value, len(fields))
	for k, v := range fields {
		val, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// Scalars are force-sent so that "", 0 and false keep their kind on the
// wire instead of collapsing to an empty value.
func encodeValue(v any) (fs.Value, error) {
	switch x := v.(type) {
	case nil:
		return fs.Value{NullValue: "NULL_VALUE"}, nil
	case string:
		return stringValue(x), nil
	case bool:
		return fs.Value{BooleanValue: x, ForceSendFields: []string{"BooleanValue"}}, nil
	case float64:
		return doubleValue(x), nil
	case float32:
		return doubleValue(float64(x)), nil
	case int:
		return integerValue(int64(x)), nil
	case int64:
		return integerValue(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return integerValue(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return fs.Value{}, err
		}
		return doubleValue(f), nil
	case time.Time:
		return fs.Value{TimestampValue: x.UTC().Format(time.RFC3339Nano)}, nil
	default:
		return fs.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func stringValue(s string) fs.Value {
	return fs.Value{StringValue: s, ForceSendFields: []string{"StringValue"}}
}

func doubleValue(f float64) fs.Value {
	return fs.Value{DoubleValue: f, ForceSendFields: []string{"DoubleValue"}}
}

func integerValue(i int64) fs.Value {
	return fs.Value{IntegerValue: i, ForceSendFields: []string{"IntegerValue"}}
}

// decodeFields converts Firestore typed values back to a document body.
// Unsupported kinds (maps, arrays, references, geo points, bytes) are dropped.
func decodeFields(in map[string]fs.Value) docstore.Fields {
	out := make(docstore.Fields, len(in))
	for k, v := range in {
		if val, ok := decodeValue(v); ok {
			out[k] = val
		}
	}
	return out
}

// decodeValue picks the value's kind from the first set member. The client
// does not keep which zero scalar was sent, so a value with every member
// unset decodes as "", which the expense codec reads as the zero of any
// field.
func decodeValue(v fs.Value) (any, bool) {
	switch {
	case v.MapValue != nil, v.ArrayValue != nil, v.GeoPointValue != nil,
		v.BytesValue != "", v.ReferenceValue != "":
		return nil, false
	case v.NullValue != "":
		return nil, true
	case v.TimestampValue != "":
		t, err := time.Parse(time.RFC3339Nano, v.TimestampValue)
		if err != nil {
			return nil, false
		}
		return t, true
	case v.StringValue != "":
		return v.StringValue, true
	case v.DoubleValue != 0:
		if math.IsNaN(v.DoubleValue) || math.IsInf(v.DoubleValue, 0) {
			return nil, false
		}
		return v.DoubleValue, true
	case v.IntegerValue != 0:
		return v.IntegerValue, true
	case v.BooleanValue:
		return true, true
	default:
		return "", true
	}
}
