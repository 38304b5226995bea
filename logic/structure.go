package logic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// orderedObject is a JSON object that remembers the order its keys first
// appeared in.
type orderedObject struct {
	keys   []string
	values map[string]any
}

// compactStructure validates an output structure template and re-serializes
// it compactly. The result matches a parse/stringify round trip: first key
// position wins, last duplicate value wins, numbers are canonical and string
// escapes are decoded.
func compactStructure(structure string) (string, error) {
	if structure == "" {
		return "", nil
	}

	// json.Compact rejects trailing data and reports the offset of a syntax error.
	var scratch bytes.Buffer
	if err := json.Compact(&scratch, []byte(structure)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOutputStructure, err)
	}

	dec := json.NewDecoder(bytes.NewReader(scratch.Bytes()))
	value, err := decodeValue(dec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOutputStructure, err)
	}

	var out bytes.Buffer
	if err := encodeValue(&out, value); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOutputStructure, err)
	}
	return out.String(), nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &orderedObject{values: make(map[string]any)}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				if _, seen := obj.values[key]; !seen {
					obj.keys = append(obj.keys, key)
				}
				obj.values[key] = v
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	default:
		// string, float64, bool or nil
		return t, nil
	}
}

func encodeValue(w *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case *orderedObject:
		w.WriteByte('{')
		for i, key := range v.keys {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := encodeScalar(w, key); err != nil {
				return err
			}
			w.WriteByte(':')
			if err := encodeValue(w, v.values[key]); err != nil {
				return err
			}
		}
		w.WriteByte('}')
	case []any:
		w.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := encodeValue(w, item); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	case float64:
		if v == 0 {
			// -0 prints as 0
			v = 0
		}
		return encodeScalar(w, v)
	default:
		return encodeScalar(w, v)
	}
	return nil
}

func encodeScalar(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}
