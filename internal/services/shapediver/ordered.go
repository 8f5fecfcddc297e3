package shapediver

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type keyed[V any] struct {
	Key   string
	Value V
}

// ordered decodes a JSON object into its members in document order.
type ordered[V any] []keyed[V]

func (o *ordered[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	members := ordered[V]{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var value V
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
		members = append(members, keyed[V]{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = members
	return nil
}

func (o ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, member := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(member.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(member.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// set replaces the member with key or appends a new one.
func (o *ordered[V]) set(key string, value V) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, keyed[V]{Key: key, Value: value})
}
