package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Statement is a parameterized SQL statement ready for execution. Table names
// the table the statement targets so driver failures can be attributed to it.
type Statement struct {
	SQL   string
	Args  []any
	Table string
}

// ExecResult is the outcome of a write or DDL statement. LastInsertID is nil
// when the driver does not report one.
type ExecResult struct {
	RowsAffected int64
	LastInsertID *int64
}

// Field is a single column assignment taken from a request body.
type Field struct {
	Name  string
	Value any
}

// FieldSet is an ordered column → value mapping. Order follows the JSON
// object the set was decoded from, so generated statements are stable.
type FieldSet []Field

// Set assigns value to name, keeping the position of an existing entry.
func (fs *FieldSet) Set(name string, value any) {
	for i := range *fs {
		if (*fs)[i].Name == name {
			(*fs)[i].Value = value
			return
		}
	}
	*fs = append(*fs, Field{Name: name, Value: value})
}

// UnmarshalJSON decodes a JSON object preserving key order. Values become
// bindable Go values: null → nil, numbers → int64 or float64, nested objects
// and arrays → their JSON text.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object")
	}

	out := FieldSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		v, err := bindableValue(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fs = out
	return nil
}

func bindableValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch raw[0] {
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		err := json.Unmarshal(raw, &b)
		return b, err
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return string(raw), nil
	default:
		s := string(raw)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", s)
		}
		return f, nil
	}
}
