// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseDN(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected DN
	}{
		{
			"empty", "", nil,
		},
		{
			"spaces only", "   ", nil,
		},
		{
			"single component",
			"cn=Babs Jensen",
			DN{{{Type: "cn", Value: "Babs Jensen"}}},
		},
		{
			"multiple components",
			"uid=bjensen,ou=People,dc=example,dc=com",
			DN{
				{{Type: "uid", Value: "bjensen"}},
				{{Type: "ou", Value: "People"}},
				{{Type: "dc", Value: "example"}},
				{{Type: "dc", Value: "com"}},
			},
		},
		{
			"multi valued rdn",
			"cn=Babs Jensen+uid=bjensen,dc=example",
			DN{
				{{Type: "cn", Value: "Babs Jensen"}, {Type: "uid", Value: "bjensen"}},
				{{Type: "dc", Value: "example"}},
			},
		},
		{
			"escaped comma",
			`cn=Smith\, John,dc=example`,
			DN{
				{{Type: "cn", Value: "Smith, John"}},
				{{Type: "dc", Value: "example"}},
			},
		},
		{
			"hex escape",
			`cn=Luc\C4\8Di\C4\87`,
			DN{{{Type: "cn", Value: "Lučić"}}},
		},
		{
			"escaped leading space",
			`cn=\ padded\ `,
			DN{{{Type: "cn", Value: " padded "}}},
		},
		{
			"unescaped trailing space dropped",
			"cn=plain  ,dc=example",
			DN{
				{{Type: "cn", Value: "plain"}},
				{{Type: "dc", Value: "example"}},
			},
		},
		{
			"numeric oid type",
			"0.9.2342.19200300.100.1.25=example",
			DN{{{Type: "0.9.2342.19200300.100.1.25", Value: "example"}}},
		},
		{
			"hexstring value",
			"cn=#04026869",
			DN{{{Type: "cn", Value: "\x04\x02hi"}}},
		},
		{
			"semicolon separator",
			"cn=a;dc=example",
			DN{
				{{Type: "cn", Value: "a"}},
				{{Type: "dc", Value: "example"}},
			},
		},
		{
			"spaces around separators",
			"cn = a , dc = example",
			DN{
				{{Type: "cn", Value: "a"}},
				{{Type: "dc", Value: "example"}},
			},
		},
		{
			"escaped equals",
			`cn=key\=value`,
			DN{{{Type: "cn", Value: "key=value"}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDN(tc.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Errorf("DN mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDNErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"missing equals", "cn"},
		{"missing type", "=value"},
		{"type starts with hyphen", "-cn=x"},
		{"trailing comma", "cn=a,"},
		{"trailing plus", "cn=a+"},
		{"dangling escape", `cn=a\`},
		{"bad escape", `cn=a\qb`},
		{"half hex escape", `cn=a\4`},
		{"odd hexstring", "cn=#040"},
		{"empty hexstring", "cn=#,dc=example"},
		{"oid trailing dot", "1.2.=x"},
		{"oid double dot", "1..2=x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDN(tc.input)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			require.Equal(t, KindMalformed, de.Kind)
		})
	}
}

func TestDNString(t *testing.T) {
	testCases := []struct {
		name     string
		dn       DN
		expected string
	}{
		{
			"plain",
			DN{
				{{Type: "uid", Value: "bjensen"}},
				{{Type: "dc", Value: "example"}},
			},
			"uid=bjensen,dc=example",
		},
		{
			"multi valued rdn",
			DN{{{Type: "cn", Value: "a"}, {Type: "sn", Value: "b"}}},
			"cn=a+sn=b",
		},
		{
			"specials escaped",
			DN{{{Type: "cn", Value: `a,b+c"d\e`}}},
			`cn=a\,b\+c\"d\\e`,
		},
		{
			"leading and trailing space escaped",
			DN{{{Type: "cn", Value: " padded "}}},
			`cn=\ padded\ `,
		},
		{
			"leading sharp escaped",
			DN{{{Type: "cn", Value: "#tag"}}},
			`cn=\#tag`,
		},
		{
			"control octet hex escaped",
			DN{{{Type: "cn", Value: "a\x00b"}}},
			`cn=a\00b`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.dn.String())

			reparsed, err := ParseDN(tc.expected)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.dn, reparsed); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDNEqual(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"identical", "cn=a,dc=example", "cn=a,dc=example", true},
		{"type case", "CN=a,DC=example", "cn=a,dc=example", true},
		{"value case", "cn=Babs Jensen,dc=example", "cn=babs jensen,dc=example", true},
		{"inner spaces", "cn=Babs  Jensen", "cn=Babs Jensen", true},
		{"rdn order within component", "cn=a+sn=b,dc=example", "sn=b+cn=a,dc=example", true},
		{"different value", "cn=a,dc=example", "cn=b,dc=example", false},
		{"different depth", "cn=a,dc=example", "cn=a", false},
		{"different shape", "cn=a+sn=b", "cn=a", false},
		{"component order significant", "dc=example,cn=a", "cn=a,dc=example", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseDN(tc.a)
			require.NoError(t, err)
			b, err := ParseDN(tc.b)
			require.NoError(t, err)
			require.Equal(t, tc.expected, a.Equal(b))
			require.Equal(t, tc.expected, b.Equal(a))
		})
	}
}
