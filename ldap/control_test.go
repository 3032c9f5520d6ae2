// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Run("empty OID", func(t *testing.T) {
		_, err := NewEnvelope("", false, nil)
		var usage *UsageError
		require.True(t, errors.As(err, &usage))
	})
	t.Run("valid", func(t *testing.T) {
		env, err := NewEnvelope("1.2.3.4", true, []byte{0x01})
		require.NoError(t, err)
		require.Equal(t, "1.2.3.4", env.OID())
		require.True(t, env.Critical())
		value, ok := env.Value()
		require.True(t, ok)
		require.Equal(t, []byte{0x01}, value)
	})
	t.Run("no value", func(t *testing.T) {
		env, err := NewEnvelope("1.2.3.4", false, nil)
		require.NoError(t, err)
		_, ok := env.Value()
		require.False(t, ok)
	})
}

func TestEnvelopeEncode(t *testing.T) {
	oid := []byte("1.2.3.4")

	testCases := []struct {
		name     string
		critical bool
		value    []byte
		want     []byte
	}{
		{
			"oid only",
			false, nil,
			append([]byte{0x30, 0x09, 0x04, 0x07}, oid...),
		},
		{
			"critical",
			true, nil,
			append(append([]byte{0x30, 0x0C, 0x04, 0x07}, oid...), 0x01, 0x01, 0xFF),
		},
		{
			"value",
			false, []byte{0xDE, 0xAD},
			append(append([]byte{0x30, 0x0D, 0x04, 0x07}, oid...), 0x04, 0x02, 0xDE, 0xAD),
		},
		{
			"critical and value",
			true, []byte{0xDE, 0xAD},
			append(append([]byte{0x30, 0x10, 0x04, 0x07}, oid...), 0x01, 0x01, 0xFF, 0x04, 0x02, 0xDE, 0xAD),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := NewEnvelope("1.2.3.4", tc.critical, tc.value)
			require.NoError(t, err)
			require.Equal(t, tc.want, env.Encode())

			decoded, err := DecodeEnvelope(tc.want)
			require.NoError(t, err)
			require.Equal(t, env.OID(), decoded.OID())
			require.Equal(t, env.Critical(), decoded.Critical())
			gotValue, gotOK := decoded.Value()
			wantValue, wantOK := env.Value()
			require.Equal(t, wantOK, gotOK)
			require.Equal(t, wantValue, gotValue)
		})
	}
}

func TestDecodeEnvelopeCriticalityForms(t *testing.T) {
	// A control with criticality false decodes identically whether or not
	// the boolean was physically present.
	oid := []byte("1.2.3.4")
	implicit := append([]byte{0x30, 0x09, 0x04, 0x07}, oid...)
	explicit := append(append([]byte{0x30, 0x0C, 0x04, 0x07}, oid...), 0x01, 0x01, 0x00)

	envImplicit, err := DecodeEnvelope(implicit)
	require.NoError(t, err)
	envExplicit, err := DecodeEnvelope(explicit)
	require.NoError(t, err)

	require.Equal(t, envImplicit.OID(), envExplicit.OID())
	require.False(t, envImplicit.Critical())
	require.False(t, envExplicit.Critical())

	// Re-encoding normalizes to the omitted form.
	require.Equal(t, implicit, envExplicit.Encode())
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	oid := []byte("1.2.3.4")

	testCases := []struct {
		name string
		src  []byte
		kind DecodeErrorKind
	}{
		{"not a sequence", []byte{0x04, 0x02, 0x01, 0x02}, KindUnexpectedTag},
		{"empty sequence", []byte{0x30, 0x00}, KindMissingField},
		{"empty OID", []byte{0x30, 0x02, 0x04, 0x00}, KindMissingField},
		{"OID wrong tag", []byte{0x30, 0x03, 0x02, 0x01, 0x05}, KindUnexpectedTag},
		{
			"boolean after value",
			append(append([]byte{0x30, 0x0F, 0x04, 0x07}, oid...), 0x04, 0x01, 0xAA, 0x01, 0x01, 0xFF),
			KindMalformed,
		},
		{
			"extra elements",
			append(append([]byte{0x30, 0x12, 0x04, 0x07}, oid...), 0x01, 0x01, 0xFF, 0x04, 0x01, 0xAA, 0x04, 0x01, 0xBB),
			KindMalformed,
		},
		{"trailing garbage", append(append([]byte{0x30, 0x09, 0x04, 0x07}, oid...), 0x00), KindMalformed},
		{"truncated", []byte{0x30, 0x09, 0x04, 0x07}, KindMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope(tc.src)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected a DecodeError, got %v", err)
			require.Equal(t, tc.kind, de.Kind, "wrong kind: %v", de)
		})
	}
}
