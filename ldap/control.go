// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"github.com/dirkit/ldap-go-driver/ber"
)

// Control is a single request or response control. Every control can report
// its identity and reduce itself to the generic wire envelope; typed controls
// additionally expose decoded fields through their own methods.
//
// Implementations are immutable: once constructed, a Control never changes.
type Control interface {
	// OID returns the object identifier that names the control type on the
	// wire. It is never empty.
	OID() string

	// Name returns a human-readable name for the control type. It is never
	// equal to the OID; controls without a registered type report a generic
	// placeholder.
	Name() string

	// Critical reports whether the control carries the criticality flag.
	Critical() bool

	// Envelope returns the generic form of the control, re-encoding the
	// typed fields into a raw value as needed.
	Envelope() Envelope
}

// Envelope is the generic wire form of a control: an OID, a criticality flag
// and an optional opaque value. It is the common denominator every typed
// control reduces to, and the form unrecognized controls surface as.
//
// The zero value is not a valid control; use NewEnvelope.
type Envelope struct {
	oid      string
	critical bool
	value    []byte
}

// NewEnvelope constructs a generic control. The oid must be non-empty; value
// may be nil for controls that carry no value. The value is not copied, so
// callers must not modify it afterward.
func NewEnvelope(oid string, critical bool, value []byte) (Envelope, error) {
	if oid == "" {
		return Envelope{}, NewUsageError("control OID must not be empty")
	}
	return Envelope{oid: oid, critical: critical, value: value}, nil
}

// OID returns the control's object identifier.
func (e Envelope) OID() string { return e.oid }

// Name returns a placeholder name; generic envelopes have no registered type.
func (e Envelope) Name() string { return "Unnamed Control" }

// Critical reports the control's criticality flag.
func (e Envelope) Critical() bool { return e.critical }

// Value returns the raw value octets and whether a value is present at all.
// The returned slice aliases the envelope's storage and must not be modified.
func (e Envelope) Value() ([]byte, bool) {
	return e.value, e.value != nil
}

// Envelope returns the receiver, satisfying Control.
func (e Envelope) Envelope() Envelope { return e }

// element returns the envelope as a BER sequence:
//
//	SEQUENCE {
//	    controlType  OCTET STRING,
//	    criticality  BOOLEAN DEFAULT FALSE,
//	    controlValue OCTET STRING OPTIONAL }
//
// The criticality field is omitted when false, matching the DEFAULT
// declaration; decoding accepts either form.
func (e Envelope) element() ber.Element {
	children := make([]ber.Element, 0, 3)
	children = append(children, ber.NewString(ber.TypeOctetString, e.oid))
	if e.critical {
		children = append(children, ber.NewBoolean(ber.TypeBoolean, true))
	}
	if e.value != nil {
		children = append(children, ber.NewOctetString(ber.TypeOctetString, e.value))
	}
	return ber.NewSequence(ber.TypeSequence, children...)
}

// AppendEncoded appends the BER encoding of the envelope to dst.
func (e Envelope) AppendEncoded(dst []byte) []byte {
	return e.element().AppendTo(dst)
}

// Encode returns the BER encoding of the envelope.
func (e Envelope) Encode() []byte {
	return e.element().Encode()
}

// DecodeEnvelope parses src as a single BER-encoded control, consuming the
// entire buffer.
func DecodeEnvelope(src []byte) (Envelope, error) {
	el, err := ber.Decode(src)
	if err != nil {
		return Envelope{}, wrapBERError(err, "invalid control encoding")
	}
	return decodeEnvelopeElement(el)
}

// decodeEnvelopeElement parses an already-framed element as a control
// sequence. The message layer uses this form when controls arrive inside a
// larger envelope.
func decodeEnvelopeElement(el ber.Element) (Envelope, error) {
	if err := ber.Expect(el, ber.TypeSequence); err != nil {
		return Envelope{}, wrapBERError(err, "control is not a sequence")
	}
	children, err := el.Sequence()
	if err != nil {
		return Envelope{}, wrapBERError(err, "invalid control sequence")
	}
	if len(children) == 0 {
		return Envelope{}, newDecodeError(KindMissingField, "control is missing its OID")
	}
	if err := ber.Expect(children[0], ber.TypeOctetString); err != nil {
		return Envelope{}, wrapBERError(err, "control OID")
	}
	oid := children[0].StringValue()
	if oid == "" {
		return Envelope{}, newDecodeError(KindMissingField, "control OID is empty")
	}

	env := Envelope{oid: oid}
	rest := children[1:]

	// The criticality flag is optional on the wire; a boolean in the second
	// position is criticality, an octet string is the value.
	if len(rest) > 0 && rest[0].Type == ber.TypeBoolean {
		critical, err := rest[0].Boolean()
		if err != nil {
			return Envelope{}, wrapBERError(err, "control criticality")
		}
		env.critical = critical
		rest = rest[1:]
	}
	if len(rest) > 0 {
		if err := ber.Expect(rest[0], ber.TypeOctetString); err != nil {
			return Envelope{}, wrapBERError(err, "control value")
		}
		env.value = rest[0].Bytes()
		if env.value == nil {
			env.value = []byte{}
		}
		rest = rest[1:]
	}
	if len(rest) > 0 {
		return Envelope{}, newDecodeError(KindMalformed,
			"control sequence has %d extra element(s)", len(rest))
	}
	return env, nil
}
