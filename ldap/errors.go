// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/go-stack/stack"
)

// DecodeErrorKind classifies the ways protocol data can fail to decode.
type DecodeErrorKind int

const (
	// KindMalformed covers tag/length mismatches, truncated input,
	// non-minimal integer encodings and syntactically broken JSON.
	KindMalformed DecodeErrorKind = iota

	// KindUnexpectedTag reports an element whose tag does not match what
	// the field in that position requires.
	KindUnexpectedTag

	// KindMissingField reports an absent mandatory field such as a control
	// identifier, a criticality flag or a required structured-value field.
	KindMissingField

	// KindConflictingFields reports mutually exclusive fields supplied
	// together, or a value supplied where the variant forbids one.
	KindConflictingFields

	// KindUnknownField reports a field outside the known set, in strict
	// mode only.
	KindUnknownField

	// KindPolicyRejected reports an embedded control whose specific decode
	// failed while the active decode behavior chose to raise.
	KindPolicyRejected

	// KindUnsupportedValue reports a value-json object supplied for a
	// control that has no registered structured-value schema.
	KindUnsupportedValue
)

// String returns a short description of the kind.
func (k DecodeErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed data"
	case KindUnexpectedTag:
		return "unexpected tag"
	case KindMissingField:
		return "missing required field"
	case KindConflictingFields:
		return "conflicting fields"
	case KindUnknownField:
		return "unrecognized field"
	case KindPolicyRejected:
		return "rejected by decode policy"
	case KindUnsupportedValue:
		return "unsupported value"
	}
	return "unknown error kind"
}

// DecodeError is returned by every decoding entry point in this package and
// its subpackages. Kind classifies the failure; Message describes it.
type DecodeError struct {
	Kind    DecodeErrorKind
	Message string
	Wrapped error
}

func (e *DecodeError) Error() string {
	return "ldap: " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *DecodeError) Unwrap() error { return e.Wrapped }

func newDecodeError(kind DecodeErrorKind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapBERError converts a ber sentinel into a DecodeError, classifying tag
// mismatches separately from other wire-level damage.
func wrapBERError(err error, context string) *DecodeError {
	kind := KindMalformed
	if errors.Is(err, ber.ErrUnexpectedTag) {
		kind = KindUnexpectedTag
	}
	return &DecodeError{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %v", context, err),
		Wrapped: err,
	}
}

// InvalidControlError reports a control object that parsed as a generic
// envelope but was rejected by the registered decoder for its OID. Callers
// walking embedded controls use it to tell "this item failed, here is why"
// apart from "the surrounding structure is malformed".
type InvalidControlError struct {
	OID      string
	Critical bool
	Err      error
}

func (e *InvalidControlError) Error() string {
	return fmt.Sprintf("ldap: control with OID %s could not be decoded: %v", e.OID, e.Err)
}

// Unwrap returns the decoder's rejection.
func (e *InvalidControlError) Unwrap() error { return e.Err }

// UsageError indicates programmer misuse of the library, detected before any
// bytes are produced. It is distinct from the decode kinds above, which all
// describe protocol data.
type UsageError struct {
	Message string
	Stack   stack.CallStack
}

// NewUsageError creates a UsageError with the current call stack.
func NewUsageError(format string, args ...interface{}) *UsageError {
	return &UsageError{
		Message: fmt.Sprintf(format, args...),
		Stack:   stack.Trace().TrimRuntime(),
	}
}

func (e *UsageError) Error() string {
	return "ldap: " + e.Message
}

// ErrorStack returns a string representing the stack at the point where the
// error occurred.
func (e *UsageError) ErrorStack() string {
	s := bytes.NewBufferString(e.Message + ": [")

	for i, call := range e.Stack {
		if i != 0 {
			s.WriteString(", ")
		}

		// go vet doesn't like %k even though it's part of stack's API, so
		// the format string lives in a variable.
		callFormat := "%k.%n %v"

		s.WriteString(fmt.Sprintf(callFormat, call, call, call))
	}

	s.WriteRune(']')

	return s.String()
}
