// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ber

// Element is a single BER element: an identifier octet plus content octets.
// For a constructed element the content octets are the concatenation of the
// encodings of its children, which Sequence parses on demand. Value aliases
// the buffer an element was decoded from; callers that retain an Element
// beyond the life of its source buffer must copy it.
type Element struct {
	Type  Type
	Value []byte
}

// NewBoolean returns a boolean element with identifier t.
func NewBoolean(t Type, value bool) Element {
	if value {
		return Element{Type: t, Value: []byte{0xFF}}
	}
	return Element{Type: t, Value: []byte{0x00}}
}

// NewInteger returns an integer element with identifier t. The content
// octets are the minimal two's-complement big-endian form of value.
func NewInteger(t Type, value int64) Element {
	n := intLength(value)
	content := make([]byte, 0, n)
	for i := n - 1; i >= 0; i-- {
		content = append(content, byte(value>>uint(8*i)))
	}
	return Element{Type: t, Value: content}
}

// NewOctetString returns an octet string element with identifier t. The
// value slice is used directly, not copied.
func NewOctetString(t Type, value []byte) Element {
	return Element{Type: t, Value: value}
}

// NewString returns an octet string element with identifier t holding the
// UTF-8 bytes of value.
func NewString(t Type, value string) Element {
	return Element{Type: t, Value: []byte(value)}
}

// NewNull returns an element with identifier t and no content octets.
func NewNull(t Type) Element {
	return Element{Type: t}
}

// NewSequence returns a constructed element with identifier t whose content
// octets are the concatenated encodings of children.
func NewSequence(t Type, children ...Element) Element {
	var content []byte
	for _, c := range children {
		content = c.AppendTo(content)
	}
	return Element{Type: t, Value: content}
}

// AppendTo appends the full encoding of e (header plus content) to dst and
// returns the extended buffer.
func (e Element) AppendTo(dst []byte) []byte {
	dst = AppendHeader(dst, e.Type, len(e.Value))
	return append(dst, e.Value...)
}

// Encode returns the full encoding of e. It is total: every Element value
// has an encoding, and the result always round-trips through Decode.
func (e Element) Encode() []byte {
	return e.AppendTo(make([]byte, 0, 2+len(e.Value)))
}

// Decode parses src as exactly one BER element. Bytes remaining after the
// element are an error; use ReadElement when src may hold more than one.
func Decode(src []byte) (Element, error) {
	e, rest, err := ReadElement(src)
	if err != nil {
		return Element{}, err
	}
	if len(rest) != 0 {
		return Element{}, ErrTrailingData
	}
	return e, nil
}

// ReadElement reads a single BER element from the front of src and returns
// it along with the remaining bytes. The returned element's Value aliases
// src.
func ReadElement(src []byte) (Element, []byte, error) {
	t, length, rest, err := ReadHeader(src)
	if err != nil {
		return Element{}, src, err
	}
	if len(rest) < length {
		return Element{}, src, ErrTruncated
	}
	return Element{Type: t, Value: rest[:length:length]}, rest[length:], nil
}

// Expect returns nil if e carries identifier t and a TagError otherwise.
func Expect(e Element, t Type) error {
	if e.Type != t {
		return &TagError{Expected: t, Actual: e.Type}
	}
	return nil
}

// Boolean returns the boolean content of e. Per X.690 8.2 the content must
// be exactly one octet; any non-zero octet decodes as true.
func (e Element) Boolean() (bool, error) {
	if len(e.Value) != 1 {
		return false, ErrInvalidBoolean
	}
	return e.Value[0] != 0x00, nil
}

// Int64 returns the integer content of e. Empty, non-minimal and
// wider-than-eight-octet encodings are errors.
func (e Element) Int64() (int64, error) {
	return decodeInt(e.Value, 8)
}

// Int32 returns the integer content of e, limited to four content octets.
func (e Element) Int32() (int32, error) {
	v, err := decodeInt(e.Value, 4)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// Enumerated returns the enumerated content of e, which shares the integer
// content form.
func (e Element) Enumerated() (int32, error) {
	return e.Int32()
}

// Bytes returns the content octets of e.
func (e Element) Bytes() []byte { return e.Value }

// StringValue returns the content octets of e as a string. The transport
// guarantees UTF-8 for the fields this is used on, so no validation happens
// here.
func (e Element) StringValue() string { return string(e.Value) }

// Sequence parses the content octets of a constructed element into its
// children. Errors from malformed children propagate unchanged.
func (e Element) Sequence() ([]Element, error) {
	if !e.Type.Constructed() {
		return nil, ErrNotConstructed
	}
	var children []Element
	rest := e.Value
	for len(rest) > 0 {
		var child Element
		var err error
		child, rest, err = ReadElement(rest)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
