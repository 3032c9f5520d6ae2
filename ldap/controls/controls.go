// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package controls implements the typed request and response controls
// understood by this module, including the JSON-formatted container control
// that embeds other controls inside its own value.
//
// Each control registers its decoding strategies with the parent package's
// registry from an init function, so importing this package (even blank)
// makes ldap.DecodeControl and ldap.UnmarshalControlJSON return typed
// controls for the OIDs defined here.
package controls

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/ldap"
)

// mustEnvelope builds an envelope for a control with a fixed, known OID.
// It panics only if the OID constant is empty, which cannot happen.
func mustEnvelope(oid string, critical bool, value []byte) ldap.Envelope {
	env, err := ldap.NewEnvelope(oid, critical, value)
	if err != nil {
		panic(err)
	}
	return env
}

func decodeErr(kind ldap.DecodeErrorKind, format string, args ...interface{}) *ldap.DecodeError {
	return &ldap.DecodeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func berErr(err error, context string) *ldap.DecodeError {
	kind := ldap.KindMalformed
	if errors.Is(err, ber.ErrUnexpectedTag) {
		kind = ldap.KindUnexpectedTag
	}
	return &ldap.DecodeError{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %v", context, err),
		Wrapped: err,
	}
}

// requireValueSequence parses a control's value as a BER sequence and
// returns its children. Controls whose values are mandatory use it as the
// first step of their binary decode.
func requireValueSequence(env ldap.Envelope, name string) ([]ber.Element, error) {
	value, ok := env.Value()
	if !ok {
		return nil, decodeErr(ldap.KindMissingField, "%s control has no value", name)
	}
	el, err := ber.Decode(value)
	if err != nil {
		return nil, berErr(err, name+" control value")
	}
	if err := ber.Expect(el, ber.TypeSequence); err != nil {
		return nil, berErr(err, name+" control value")
	}
	children, err := el.Sequence()
	if err != nil {
		return nil, berErr(err, name+" control value")
	}
	return children, nil
}

// walkValueObject iterates the fields of a control's value-json object.
// Recognized fields are dispatched to their handler; a field appearing twice
// is an error, and unrecognized fields are an error in strict mode.
func walkValueObject(data []byte, strict bool, name string, fields map[string]func(value []byte, dt jsonparser.ValueType) error) error {
	seen := make(map[string]bool, len(fields))
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		k := string(key)
		handler, ok := fields[k]
		if !ok {
			if strict {
				return decodeErr(ldap.KindUnknownField, "%s value has unrecognized field %q", name, k)
			}
			return nil
		}
		if seen[k] {
			return decodeErr(ldap.KindMalformed, "%s value has a duplicate %s field", name, k)
		}
		seen[k] = true
		return handler(value, dt)
	})
	if err != nil {
		var de *ldap.DecodeError
		if errors.As(err, &de) {
			return de
		}
		return &ldap.DecodeError{
			Kind:    ldap.KindMalformed,
			Message: fmt.Sprintf("invalid %s value: %v", name, err),
			Wrapped: err,
		}
	}
	return nil
}

func parseJSONBool(name, field string, value []byte, dt jsonparser.ValueType) (bool, error) {
	if dt != jsonparser.Boolean {
		return false, decodeErr(ldap.KindMalformed, "%s value field %s is a %s, not a boolean", name, field, dt)
	}
	b, err := jsonparser.ParseBoolean(value)
	if err != nil {
		return false, decodeErr(ldap.KindMalformed, "%s value field %s: %v", name, field, err)
	}
	return b, nil
}

func parseJSONString(name, field string, value []byte, dt jsonparser.ValueType) (string, error) {
	if dt != jsonparser.String {
		return "", decodeErr(ldap.KindMalformed, "%s value field %s is a %s, not a string", name, field, dt)
	}
	s, err := jsonparser.ParseString(value)
	if err != nil {
		return "", decodeErr(ldap.KindMalformed, "%s value field %s: %v", name, field, err)
	}
	return s, nil
}

func parseJSONInt(name, field string, value []byte, dt jsonparser.ValueType) (int64, error) {
	if dt != jsonparser.Number {
		return 0, decodeErr(ldap.KindMalformed, "%s value field %s is a %s, not an integer", name, field, dt)
	}
	i, err := jsonparser.ParseInt(value)
	if err != nil {
		return 0, decodeErr(ldap.KindMalformed, "%s value field %s is not an integer: %v", name, field, err)
	}
	return i, nil
}
