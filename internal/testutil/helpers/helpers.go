// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package helpers holds assertion helpers shared by codec tests outside the
// ldap package itself.
package helpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirkit/ldap-go-driver/ldap"
)

// RequireDecodeKind asserts that err is a *ldap.DecodeError of the given kind
// and returns it for further inspection.
func RequireDecodeKind(t *testing.T, err error, kind ldap.DecodeErrorKind) *ldap.DecodeError {
	t.Helper()

	var de *ldap.DecodeError
	require.True(t, errors.As(err, &de), "expected a DecodeError, got %v (%T)", err, err)
	require.Equal(t, kind, de.Kind, "wrong decode error kind for %v", de)
	return de
}

// RequireInvalidControl asserts that err reports a control rejected by its
// registered decoder and returns the rejection for further inspection.
func RequireInvalidControl(t *testing.T, err error) *ldap.InvalidControlError {
	t.Helper()

	var ice *ldap.InvalidControlError
	require.True(t, errors.As(err, &ice), "expected an InvalidControlError, got %v (%T)", err, err)
	return ice
}

// RequireUsageError asserts that err is a *ldap.UsageError.
func RequireUsageError(t *testing.T, err error) {
	t.Helper()

	var ue *ldap.UsageError
	require.True(t, errors.As(err, &ue), "expected a UsageError, got %v (%T)", err, err)
}
