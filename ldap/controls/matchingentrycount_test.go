// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package controls

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/internal/testutil/helpers"
	"github.com/dirkit/ldap-go-driver/ldap"
)

func TestMatchingEntryCountResponseBinaryRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		build func(t *testing.T) *MatchingEntryCountResponseControl
	}{
		{
			"examined minimal",
			func(t *testing.T) *MatchingEntryCountResponseControl {
				c, err := NewExaminedCountResponseControl(0, true)
				require.NoError(t, err)
				return c
			},
		},
		{
			"unexamined unindexed",
			func(t *testing.T) *MatchingEntryCountResponseControl {
				c, err := NewUnexaminedCountResponseControl(123, false)
				require.NoError(t, err)
				return c
			},
		},
		{
			"upper bound with every optional",
			func(t *testing.T) *MatchingEntryCountResponseControl {
				c, err := NewUpperBoundCountResponseControl(5000, true,
					WithShortCircuited(true),
					WithFullyIndexed(false),
					WithCandidatesAreInScope(true),
					WithRemainingFilter("(department=eng)"),
					WithDebugInfo("considered index a", "fell back to scan"),
				)
				require.NoError(t, err)
				return c
			},
		},
		{
			"unknown with debug info",
			func(t *testing.T) *MatchingEntryCountResponseControl {
				return NewUnknownCountResponseControl(false, WithDebugInfo("no usable index"))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			want := tc.build(t)
			env := want.Envelope()

			decoded, err := ldap.DecodeControl(env)
			require.NoError(t, err)
			got, ok := decoded.(*MatchingEntryCountResponseControl)
			require.True(t, ok, "expected a matching entry count response, got %T", decoded)
			require.Equal(t, want, got)
			require.Equal(t, env.Encode(), got.Envelope().Encode())
		})
	}
}

func TestMatchingEntryCountResponseAccessors(t *testing.T) {
	c, err := NewUnexaminedCountResponseControl(42, false, WithFullyIndexed(true))
	require.NoError(t, err)

	require.Equal(t, CountTypeUnexamined, c.CountType())
	count, ok := c.CountValue()
	require.True(t, ok)
	require.Equal(t, 42, count)
	require.False(t, c.SearchIndexed())
	require.Nil(t, c.ShortCircuited())

	fi := c.FullyIndexed()
	require.NotNil(t, fi)
	*fi = false
	require.True(t, *c.FullyIndexed(), "accessors must hand out copies")

	unknown := NewUnknownCountResponseControl(true)
	_, ok = unknown.CountValue()
	require.False(t, ok, "an unknown count has no value")
}

func TestMatchingEntryCountResponseJSON(t *testing.T) {
	t.Run("unexamined unindexed", func(t *testing.T) {
		c, err := NewUnexaminedCountResponseControl(123, false)
		require.NoError(t, err)

		data, err := ldap.MarshalControlJSON(c)
		require.NoError(t, err)
		require.Equal(t,
			`{"oid":"1.3.6.1.4.1.30221.2.5.37","control-name":"Matching Entry Count Response Control",`+
				`"criticality":false,"value-json":{"count-type":"unexamined-count","count-value":123,"search-indexed":false}}`,
			string(data))

		decoded, err := ldap.UnmarshalControlJSON(data, true)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	})

	t.Run("unknown omits count-value", func(t *testing.T) {
		c := NewUnknownCountResponseControl(true)

		data, err := ldap.MarshalControlJSON(c)
		require.NoError(t, err)
		require.Equal(t,
			`{"oid":"1.3.6.1.4.1.30221.2.5.37","control-name":"Matching Entry Count Response Control",`+
				`"criticality":false,"value-json":{"count-type":"unknown","search-indexed":true}}`,
			string(data))

		decoded, err := ldap.UnmarshalControlJSON(data, true)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	})

	t.Run("every optional", func(t *testing.T) {
		c, err := NewExaminedCountResponseControl(7, true,
			WithFullyIndexed(true),
			WithShortCircuited(false),
			WithCandidatesAreInScope(true),
			WithRemainingFilter("(cn=a*)"),
			WithDebugInfo("line one", "line two"),
		)
		require.NoError(t, err)

		data, err := ldap.MarshalControlJSON(c)
		require.NoError(t, err)

		decoded, err := ldap.UnmarshalControlJSON(data, true)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	})
}

func TestMatchingEntryCountResponseConstructors(t *testing.T) {
	_, err := NewExaminedCountResponseControl(-1, true)
	helpers.RequireUsageError(t, err)

	_, err = NewUnexaminedCountResponseControl(-10, false)
	helpers.RequireUsageError(t, err)

	_, err = NewUpperBoundCountResponseControl(0, true)
	helpers.RequireUsageError(t, err)

	_, err = NewUpperBoundCountResponseControl(-3, true)
	helpers.RequireUsageError(t, err)
}

func mecValue(children ...ber.Element) []byte {
	return ber.NewSequence(ber.TypeSequence, children...).Encode()
}

func TestMatchingEntryCountResponseDecodeErrors(t *testing.T) {
	testCases := []struct {
		name  string
		value []byte
		kind  ldap.DecodeErrorKind
	}{
		{"no count variant", mecValue(), ldap.KindMissingField},
		{
			"two count variants",
			mecValue(
				ber.NewInteger(ber.ContextType(mecTagExaminedCount, false), 1),
				ber.NewInteger(ber.ContextType(mecTagUnexaminedCount, false), 2),
			),
			ldap.KindConflictingFields,
		},
		{
			"unknown carries content",
			mecValue(ber.Element{Type: ber.ContextType(mecTagUnknown, false), Value: []byte{0x00}}),
			ldap.KindConflictingFields,
		},
		{
			"negative examined count",
			mecValue(ber.NewInteger(ber.ContextType(mecTagExaminedCount, false), -1)),
			ldap.KindMalformed,
		},
		{
			"zero upper bound",
			mecValue(ber.NewInteger(ber.ContextType(mecTagUpperBound, false), 0)),
			ldap.KindMalformed,
		},
		{
			"unexpected tag",
			mecValue(
				ber.NewInteger(ber.ContextType(mecTagExaminedCount, false), 1),
				ber.NewBoolean(ber.ContextType(12, false), true),
			),
			ldap.KindUnexpectedTag,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ldap.NewEnvelope(MatchingEntryCountResponseOID, false, tc.value)
			require.NoError(t, err)
			_, err = ldap.DecodeControl(env)
			helpers.RequireDecodeKind(t, err, tc.kind)
		})
	}

	t.Run("missing value", func(t *testing.T) {
		env, err := ldap.NewEnvelope(MatchingEntryCountResponseOID, false, nil)
		require.NoError(t, err)
		_, err = ldap.DecodeControl(env)
		helpers.RequireDecodeKind(t, err, ldap.KindMissingField)
	})
}

func TestMatchingEntryCountResponseJSONDecodeErrors(t *testing.T) {
	object := func(valueJSON string) []byte {
		return []byte(`{"oid":"1.3.6.1.4.1.30221.2.5.37","criticality":false,"value-json":` + valueJSON + `}`)
	}

	testCases := []struct {
		name      string
		valueJSON string
		kind      ldap.DecodeErrorKind
	}{
		{"missing count-type", `{"search-indexed":true}`, ldap.KindMissingField},
		{"missing search-indexed", `{"count-type":"examined-count","count-value":1}`, ldap.KindMissingField},
		{"missing count-value", `{"count-type":"examined-count","search-indexed":true}`, ldap.KindMissingField},
		{"unknown with count-value", `{"count-type":"unknown","count-value":1,"search-indexed":true}`, ldap.KindConflictingFields},
		{"unrecognized count-type", `{"count-type":"estimated","search-indexed":true}`, ldap.KindMalformed},
		{"count-type not a string", `{"count-type":4,"search-indexed":true}`, ldap.KindMalformed},
		{"negative count-value", `{"count-type":"examined-count","count-value":-2,"search-indexed":true}`, ldap.KindMalformed},
		{"zero upper bound", `{"count-type":"upper-bound","count-value":0,"search-indexed":true}`, ldap.KindMalformed},
		{"debug-info not an array", `{"count-type":"unknown","search-indexed":true,"debug-info":"x"}`, ldap.KindMalformed},
		{"debug-info entry not a string", `{"count-type":"unknown","search-indexed":true,"debug-info":[1]}`, ldap.KindMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ldap.UnmarshalControlJSON(object(tc.valueJSON), false)
			invalid := helpers.RequireInvalidControl(t, err)
			require.Equal(t, MatchingEntryCountResponseOID, invalid.OID)
			helpers.RequireDecodeKind(t, err, tc.kind)
		})
	}

	t.Run("unknown field only fails strict", func(t *testing.T) {
		data := object(`{"count-type":"unknown","search-indexed":true,"x-extra":1}`)

		_, err := ldap.UnmarshalControlJSON(data, false)
		require.NoError(t, err)

		_, err = ldap.UnmarshalControlJSON(data, true)
		helpers.RequireDecodeKind(t, err, ldap.KindUnknownField)
	})
}

func TestMatchingEntryCountRequestRoundTrip(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		want, err := NewMatchingEntryCountRequestControl(true)
		require.NoError(t, err)

		decoded, err := ldap.DecodeControl(want.Envelope())
		require.NoError(t, err)
		require.Equal(t, want, decoded)
		require.True(t, decoded.Critical())

		data, err := ldap.MarshalControlJSON(want)
		require.NoError(t, err)
		require.Equal(t,
			`{"oid":"1.3.6.1.4.1.30221.2.5.36","control-name":"Matching Entry Count Request Control",`+
				`"criticality":true,"value-json":{}}`,
			string(data))

		fromJSON, err := ldap.UnmarshalControlJSON(data, true)
		require.NoError(t, err)
		require.Equal(t, want, fromJSON)
	})

	t.Run("every option", func(t *testing.T) {
		want, err := NewMatchingEntryCountRequestControl(false,
			WithMaxCandidatesToExamine(250),
			WithAlwaysExamineCandidates(true),
			WithProcessSearchIfUnindexed(true),
			WithIncludeDebugInfo(true),
		)
		require.NoError(t, err)
		require.Equal(t, 250, want.MaxCandidatesToExamine())
		require.True(t, want.AlwaysExamineCandidates())
		require.True(t, want.ProcessSearchIfUnindexed())
		require.True(t, want.IncludeDebugInfo())

		decoded, err := ldap.DecodeControl(want.Envelope())
		require.NoError(t, err)
		require.Equal(t, want, decoded)

		data, err := ldap.MarshalControlJSON(want)
		require.NoError(t, err)
		fromJSON, err := ldap.UnmarshalControlJSON(data, true)
		require.NoError(t, err)
		require.Equal(t, want, fromJSON)
	})

	t.Run("negative max candidates", func(t *testing.T) {
		_, err := NewMatchingEntryCountRequestControl(false, WithMaxCandidatesToExamine(-1))
		helpers.RequireUsageError(t, err)
	})

	t.Run("binary decode errors", func(t *testing.T) {
		env, err := ldap.NewEnvelope(MatchingEntryCountRequestOID, false,
			mecValue(ber.NewInteger(ber.ContextType(mecReqTagMaxCandidates, false), -5)))
		require.NoError(t, err)
		_, err = ldap.DecodeControl(env)
		helpers.RequireDecodeKind(t, err, ldap.KindMalformed)

		env, err = ldap.NewEnvelope(MatchingEntryCountRequestOID, false,
			mecValue(ber.NewBoolean(ber.ContextType(9, false), true)))
		require.NoError(t, err)
		_, err = ldap.DecodeControl(env)
		helpers.RequireDecodeKind(t, err, ldap.KindUnexpectedTag)
	})

	t.Run("unknown field only fails strict", func(t *testing.T) {
		object := func(valueJSON string) []byte {
			return []byte(`{"oid":"1.3.6.1.4.1.30221.2.5.36","criticality":false,"value-json":` + valueJSON + `}`)
		}
		data := object(`{"max-candidates-to-examine":250,"x-extra":1}`)

		lenient, err := ldap.UnmarshalControlJSON(data, false)
		require.NoError(t, err)
		pruned, err := ldap.UnmarshalControlJSON(object(`{"max-candidates-to-examine":250}`), true)
		require.NoError(t, err)
		require.Equal(t, pruned, lenient)

		_, err = ldap.UnmarshalControlJSON(data, true)
		helpers.RequireDecodeKind(t, err, ldap.KindUnknownField)
	})
}
