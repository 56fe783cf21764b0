// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// object is an ordered JSON object. Key order is kept so unknown fields and
// packer-specific ordering survive a rebuild.
type object struct {
	values map[string]any
	keys   []string
}

// newObject returns an empty ordered object.
func newObject(capacity int) *object {
	return &object{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

// get returns value stored under key.
func (o *object) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// set stores value and appends key when new.
func (o *object) set(key string, v any) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}

	o.values[key] = v
}

// child returns nested object stored under key.
func (o *object) child(key string) (*object, bool) {
	v, ok := o.values[key]
	if !ok {
		return nil, false
	}

	obj, ok := v.(*object)
	return obj, ok
}

// clone returns a deep copy of the object tree.
func (o *object) clone() *object {
	out := newObject(len(o.keys))
	for _, k := range o.keys {
		out.set(k, cloneValue(o.values[k]))
	}

	return out
}

// cloneValue deep-copies one decoded JSON value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case *object:
		return t.clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}

		return out
	default:
		// strings, numbers, bools and nil are immutable
		return t
	}
}

// decodeHeader parses header JSON into an ordered tree rooted at an object.
func decodeHeader(raw []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: header json: %w", ErrFormat, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after header json", ErrFormat)
	}

	root, ok := v.(*object)
	if !ok {
		return nil, fmt.Errorf("%w: header root is not an object", ErrFormat)
	}

	return root, nil
}

// decodeValue reads one JSON value from token stream.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := newObject(4)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}

			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}

			if _, dup := obj.values[key]; dup {
				return nil, fmt.Errorf("duplicate key %q", key)
			}

			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			obj.set(key, val)
		}

		if _, err := dec.Token(); err != nil {
			return nil, err
		}

		return obj, nil
	case '[':
		arr := make([]any, 0, 4)
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			arr = append(arr, val)
		}

		if _, err := dec.Token(); err != nil {
			return nil, err
		}

		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// encodeHeader writes the tree as compact JSON, matching JSON.stringify output.
func encodeHeader(root *object) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, root); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// encodeValue appends one value in compact form.
func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case *object:
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := encodeString(buf, k); err != nil {
				return err
			}

			buf.WriteByte(':')
			if err := encodeValue(buf, t.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i := range t {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := encodeValue(buf, t[i]); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		return encodeString(buf, t)
	case json.Number:
		buf.WriteString(t.String())
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("%w: unsupported header value %T", ErrShape, v)
	}

	return nil
}

// encodeString writes a JSON string without HTML escaping.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}

	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}
