// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package controls

import (
	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/ldap"
)

// OIDs of the pre-read and post-read entry controls. Each OID is shared by
// the request and response forms of its control; the registry decodes the
// response form, since requests are built locally rather than parsed.
const (
	PreReadOID  = "1.3.6.1.1.13.1"
	PostReadOID = "1.3.6.1.1.13.2"
)

const (
	preReadRequestName   = "Pre-Read Request Control"
	preReadResponseName  = "Pre-Read Response Control"
	postReadRequestName  = "Post-Read Request Control"
	postReadResponseName = "Post-Read Response Control"
)

// readEntryRequest is the state shared by the pre- and post-read request
// controls: the attribute selection to return. An empty selection asks for
// all user attributes.
type readEntryRequest struct {
	critical   bool
	attributes []string
}

// Critical reports the control's criticality flag.
func (c *readEntryRequest) Critical() bool { return c.critical }

// Attributes returns the requested attribute selection.
func (c *readEntryRequest) Attributes() []string {
	return append([]string(nil), c.attributes...)
}

func (c *readEntryRequest) envelope(oid string) ldap.Envelope {
	attrs := make([]ber.Element, len(c.attributes))
	for i, a := range c.attributes {
		attrs[i] = ber.NewString(ber.TypeOctetString, a)
	}
	value := ber.NewSequence(ber.TypeSequence, attrs...).Encode()
	return mustEnvelope(oid, c.critical, value)
}

// PreReadRequestControl asks the server to return the target entry as it
// was before a modify, delete, or modify DN operation.
type PreReadRequestControl struct {
	readEntryRequest
}

// NewPreReadRequestControl creates a pre-read request for the given
// attribute selection.
func NewPreReadRequestControl(critical bool, attributes ...string) *PreReadRequestControl {
	return &PreReadRequestControl{readEntryRequest{
		critical:   critical,
		attributes: append([]string(nil), attributes...),
	}}
}

// OID returns PreReadOID.
func (c *PreReadRequestControl) OID() string { return PreReadOID }

// Name returns the human-readable control name.
func (c *PreReadRequestControl) Name() string { return preReadRequestName }

// Envelope re-encodes the control into its generic wire form.
func (c *PreReadRequestControl) Envelope() ldap.Envelope { return c.envelope(PreReadOID) }

// PostReadRequestControl asks the server to return the target entry as it
// is after an add, modify, or modify DN operation.
type PostReadRequestControl struct {
	readEntryRequest
}

// NewPostReadRequestControl creates a post-read request for the given
// attribute selection.
func NewPostReadRequestControl(critical bool, attributes ...string) *PostReadRequestControl {
	return &PostReadRequestControl{readEntryRequest{
		critical:   critical,
		attributes: append([]string(nil), attributes...),
	}}
}

// OID returns PostReadOID.
func (c *PostReadRequestControl) OID() string { return PostReadOID }

// Name returns the human-readable control name.
func (c *PostReadRequestControl) Name() string { return postReadRequestName }

// Envelope re-encodes the control into its generic wire form.
func (c *PostReadRequestControl) Envelope() ldap.Envelope { return c.envelope(PostReadOID) }

// readEntryResponse is the state shared by the pre- and post-read response
// controls: the entry the server captured.
type readEntryResponse struct {
	critical bool
	entry    ldap.Entry
}

// Critical reports the control's criticality flag.
func (c *readEntryResponse) Critical() bool { return c.critical }

// Entry returns the captured entry.
func (c *readEntryResponse) Entry() ldap.Entry { return c.entry }

func (c *readEntryResponse) envelope(oid string) ldap.Envelope {
	return mustEnvelope(oid, c.critical, ldap.AppendEntry(nil, c.entry))
}

// PreReadResponseControl carries the target entry as it was before the
// operation.
type PreReadResponseControl struct {
	readEntryResponse
}

// NewPreReadResponseControl creates a pre-read response carrying entry.
func NewPreReadResponseControl(entry ldap.Entry) *PreReadResponseControl {
	return &PreReadResponseControl{readEntryResponse{entry: entry}}
}

// OID returns PreReadOID.
func (c *PreReadResponseControl) OID() string { return PreReadOID }

// Name returns the human-readable control name.
func (c *PreReadResponseControl) Name() string { return preReadResponseName }

// Envelope re-encodes the control into its generic wire form.
func (c *PreReadResponseControl) Envelope() ldap.Envelope { return c.envelope(PreReadOID) }

// PostReadResponseControl carries the target entry as it is after the
// operation.
type PostReadResponseControl struct {
	readEntryResponse
}

// NewPostReadResponseControl creates a post-read response carrying entry.
func NewPostReadResponseControl(entry ldap.Entry) *PostReadResponseControl {
	return &PostReadResponseControl{readEntryResponse{entry: entry}}
}

// OID returns PostReadOID.
func (c *PostReadResponseControl) OID() string { return PostReadOID }

// Name returns the human-readable control name.
func (c *PostReadResponseControl) Name() string { return postReadResponseName }

// Envelope re-encodes the control into its generic wire form.
func (c *PostReadResponseControl) Envelope() ldap.Envelope { return c.envelope(PostReadOID) }

func decodeReadEntryValue(env ldap.Envelope, name string) (readEntryResponse, error) {
	value, ok := env.Value()
	if !ok {
		return readEntryResponse{}, decodeErr(ldap.KindMissingField, "%s control has no value", name)
	}
	entry, err := ldap.DecodeEntry(value)
	if err != nil {
		return readEntryResponse{}, err
	}
	return readEntryResponse{critical: env.Critical(), entry: entry}, nil
}

func decodePreReadResponse(env ldap.Envelope) (ldap.Control, error) {
	core, err := decodeReadEntryValue(env, "pre-read response")
	if err != nil {
		return nil, err
	}
	return &PreReadResponseControl{core}, nil
}

func decodePostReadResponse(env ldap.Envelope) (ldap.Control, error) {
	core, err := decodeReadEntryValue(env, "post-read response")
	if err != nil {
		return nil, err
	}
	return &PostReadResponseControl{core}, nil
}

func init() {
	ldap.RegisterControl(PreReadOID, decodePreReadResponse, nil)
	ldap.RegisterControl(PostReadOID, decodePostReadResponse, nil)
}
