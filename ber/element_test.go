// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ber

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestElementRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		elem Element
	}{
		{"boolean", NewBoolean(TypeBoolean, true)},
		{"integer", NewInteger(TypeInteger, 12345)},
		{"tagged integer", NewInteger(ContextType(2, false), -7)},
		{"octet string", NewOctetString(TypeOctetString, []byte("dc=example,dc=com"))},
		{"empty octet string", NewOctetString(TypeOctetString, nil)},
		{"string", NewString(ContextType(1, false), "uid=jdoe")},
		{"null", NewNull(TypeNull)},
		{"flat sequence", NewSequence(TypeSequence,
			NewInteger(TypeInteger, 3),
			NewString(TypeOctetString, "cn"),
		)},
		{"nested sequence", NewSequence(TypeSequence,
			NewSequence(ContextType(0, true),
				NewSequence(TypeSet, NewString(TypeOctetString, "a"), NewString(TypeOctetString, "b")),
			),
			NewBoolean(TypeBoolean, false),
		)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.elem.Encode()
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			if diff := cmp.Diff(normalize(tc.elem), normalize(decoded)); diff != "" {
				t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// normalize maps a nil Value to an empty one so cmp treats an element built
// with no content and one decoded from zero content octets as equal.
func normalize(e Element) Element {
	if e.Value == nil {
		e.Value = []byte{}
	}
	return e
}

func TestDecode(t *testing.T) {
	t.Run("trailing data", func(t *testing.T) {
		buf := NewNull(TypeNull).Encode()
		buf = append(buf, 0x00)
		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrTrailingData)
	})
	t.Run("declared length beyond input", func(t *testing.T) {
		_, err := Decode([]byte{0x04, 0x05, 'a', 'b'})
		require.ErrorIs(t, err, ErrTruncated)
	})
	t.Run("empty input", func(t *testing.T) {
		_, err := Decode(nil)
		require.ErrorIs(t, err, ErrTruncated)
	})
}

func TestReadElement(t *testing.T) {
	buf := NewInteger(TypeInteger, 1).AppendTo(nil)
	buf = NewInteger(TypeInteger, 2).AppendTo(buf)

	first, rest, err := ReadElement(buf)
	require.NoError(t, err)
	v, err := first.Int64()
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	second, rest, err := ReadElement(rest)
	require.NoError(t, err)
	v, err = second.Int64()
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
	require.Empty(t, rest)
}

func TestSequence(t *testing.T) {
	t.Run("children in order", func(t *testing.T) {
		seq := NewSequence(TypeSequence,
			NewString(TypeOctetString, "first"),
			NewString(TypeOctetString, "second"),
			NewString(TypeOctetString, "third"),
		)
		decoded, err := Decode(seq.Encode())
		require.NoError(t, err)
		children, err := decoded.Sequence()
		require.NoError(t, err)
		require.Len(t, children, 3)
		require.Equal(t, "first", children[0].StringValue())
		require.Equal(t, "second", children[1].StringValue())
		require.Equal(t, "third", children[2].StringValue())
	})
	t.Run("empty sequence", func(t *testing.T) {
		decoded, err := Decode(NewSequence(TypeSequence).Encode())
		require.NoError(t, err)
		children, err := decoded.Sequence()
		require.NoError(t, err)
		require.Empty(t, children)
	})
	t.Run("primitive element", func(t *testing.T) {
		_, err := NewInteger(TypeInteger, 1).Sequence()
		require.ErrorIs(t, err, ErrNotConstructed)
	})
	t.Run("malformed child propagates", func(t *testing.T) {
		// Child declares three content octets but only two remain.
		e := Element{Type: TypeSequence, Value: []byte{0x04, 0x03, 'a', 'b'}}
		_, err := e.Sequence()
		require.ErrorIs(t, err, ErrTruncated)
	})
}

func TestExpect(t *testing.T) {
	e := NewInteger(TypeInteger, 9)
	require.NoError(t, Expect(e, TypeInteger))

	err := Expect(e, TypeOctetString)
	require.ErrorIs(t, err, ErrUnexpectedTag)

	var tagErr *TagError
	require.ErrorAs(t, err, &tagErr)
	require.Equal(t, TypeOctetString, tagErr.Expected)
	require.Equal(t, TypeInteger, tagErr.Actual)
}
