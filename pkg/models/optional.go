package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrInvalidID is returned when an id field holds anything but an integer
// or null.
var ErrInvalidID = errors.New("must be an integer id or null")

// OptionalID is a nullable id that remembers whether it was present at all.
//
//	{}                  → Set=false
//	{"assignedTo":null} → Set=true, Value=nil
//	{"assignedTo":7}    → Set=true, Value=7
type OptionalID struct {
	Set   bool
	Value *int64
}

// SomeID returns a present, non-null OptionalID.
func SomeID(id int64) OptionalID {
	return OptionalID{Set: true, Value: &id}
}

// NullID returns a present, null OptionalID.
func NullID() OptionalID {
	return OptionalID{Set: true}
}

// IsZero reports whether the field was absent, for omitzero.
func (o OptionalID) IsZero() bool {
	return !o.Set
}

// UnmarshalJSON implements json.Unmarshaler. It is only called when the key
// is present.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return ErrInvalidID
	}
	o.Value = &id
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
