// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirkit/ldap-go-driver/ber"
)

func TestDecodeErrorKindString(t *testing.T) {
	testCases := []struct {
		kind DecodeErrorKind
		want string
	}{
		{KindMalformed, "malformed data"},
		{KindUnexpectedTag, "unexpected tag"},
		{KindMissingField, "missing required field"},
		{KindConflictingFields, "conflicting fields"},
		{KindUnknownField, "unrecognized field"},
		{KindPolicyRejected, "rejected by decode policy"},
		{KindUnsupportedValue, "unsupported value"},
		{DecodeErrorKind(99), "unknown error kind"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, tc.kind.String())
	}
}

func TestWrapBERError(t *testing.T) {
	t.Run("tag mismatch", func(t *testing.T) {
		cause := &ber.TagError{Expected: ber.TypeSequence, Actual: ber.TypeOctetString}
		err := wrapBERError(cause, "control")
		require.Equal(t, KindUnexpectedTag, err.Kind)
		require.True(t, errors.Is(err, ber.ErrUnexpectedTag))
		require.Contains(t, err.Error(), "control")
	})

	t.Run("other damage", func(t *testing.T) {
		err := wrapBERError(ber.ErrTruncated, "control value")
		require.Equal(t, KindMalformed, err.Kind)
		require.True(t, errors.Is(err, ber.ErrTruncated))
	})
}

func TestInvalidControlError(t *testing.T) {
	cause := newDecodeError(KindMissingField, "value is missing its count")
	err := &InvalidControlError{OID: "2.5.37", Critical: true, Err: cause}

	require.Contains(t, err.Error(), "2.5.37")
	require.True(t, errors.Is(err, cause))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, KindMissingField, de.Kind)
}

func TestUsageError(t *testing.T) {
	err := NewUsageError("value must be %s", "non-negative")
	require.Equal(t, "ldap: value must be non-negative", err.Error())
	require.NotEmpty(t, err.Stack)
	require.True(t, strings.HasPrefix(err.ErrorStack(), "value must be non-negative: ["))
}
