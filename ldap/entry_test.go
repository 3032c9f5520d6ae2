// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/dirkit/ldap-go-driver/ber"
)

func TestEntryRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		entry Entry
	}{
		{"empty", Entry{}},
		{"dn only", Entry{DN: "dc=example,dc=com"}},
		{
			"attributes",
			Entry{
				DN: "uid=jdoe,ou=People,dc=example,dc=com",
				Attributes: []Attribute{
					{Name: "objectClass", Values: []string{"top", "person"}},
					{Name: "uid", Values: []string{"jdoe"}},
					{Name: "description", Values: nil},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := AppendEntry(nil, tc.entry)
			decoded, err := DecodeEntry(encoded)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.entry, decoded); diff != "" {
				t.Errorf("entry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEntryAttributeLookup(t *testing.T) {
	entry := Entry{
		DN: "uid=jdoe,dc=example,dc=com",
		Attributes: []Attribute{
			{Name: "givenName", Values: []string{"Jan", "J"}},
			{Name: "sn", Values: []string{"Doe"}},
		},
	}

	values, ok := entry.Attribute("GIVENNAME")
	require.True(t, ok, "attribute names are case-insensitive")
	require.Equal(t, []string{"Jan", "J"}, values)

	require.Equal(t, "Jan", entry.AttributeValue("givenname"))
	require.Equal(t, "", entry.AttributeValue("mail"))

	_, ok = entry.Attribute("mail")
	require.False(t, ok)
}

func TestDecodeEntryErrors(t *testing.T) {
	valid := AppendEntry(nil, Entry{DN: "dc=example"})

	testCases := []struct {
		name string
		src  []byte
		kind DecodeErrorKind
	}{
		{"primitive outer", []byte{0x04, 0x00}, KindMalformed},
		{"one child", []byte{0x30, 0x02, 0x04, 0x00}, KindMalformed},
		{"dn wrong tag", []byte{0x30, 0x05, 0x02, 0x01, 0x01, 0x30, 0x00}, KindUnexpectedTag},
		{"attribute list wrong tag", []byte{0x30, 0x04, 0x04, 0x00, 0x04, 0x00}, KindUnexpectedTag},
		{"truncated", valid[:len(valid)-1], KindMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEntry(tc.src)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected a DecodeError, got %v", err)
			require.Equal(t, tc.kind, de.Kind, "wrong kind: %v", de)
		})
	}
}

func TestDecodeAttributeErrors(t *testing.T) {
	t.Run("values must be a set", func(t *testing.T) {
		el := ber.NewSequence(ber.TypeSequence,
			ber.NewString(ber.TypeOctetString, "cn"),
			ber.NewSequence(ber.TypeSequence, ber.NewString(ber.TypeOctetString, "x")),
		)
		_, err := DecodeAttribute(el)
		var de *DecodeError
		require.True(t, errors.As(err, &de))
		require.Equal(t, KindUnexpectedTag, de.Kind)
	})

	t.Run("wrong child count", func(t *testing.T) {
		el := ber.NewSequence(ber.TypeSequence, ber.NewString(ber.TypeOctetString, "cn"))
		_, err := DecodeAttribute(el)
		var de *DecodeError
		require.True(t, errors.As(err, &de))
		require.Equal(t, KindMalformed, de.Kind)
	})
}
