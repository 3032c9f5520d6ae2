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

// IntermediateClientOID identifies both the intermediate client request and
// response controls. The registry decodes the response form; requests are
// built locally by clients and intermediaries.
const IntermediateClientOID = "1.3.6.1.4.1.30221.2.5.2"

const (
	intermediateClientRequestName  = "Intermediate Client Request Control"
	intermediateClientResponseName = "Intermediate Client Response Control"
)

// IntermediateClientRequestValue describes one hop in a chain of
// intermediaries between the ultimate client and the server. Every field is
// optional; DownstreamRequest nests the value supplied by the next client
// further from the server, to arbitrary depth.
//
//	SEQUENCE {
//	    downstreamRequest        [0] SEQUENCE OPTIONAL,
//	    downstreamClientAddress  [1] OCTET STRING OPTIONAL,
//	    downstreamClientSecure   [2] BOOLEAN OPTIONAL,
//	    clientIdentity           [3] OCTET STRING OPTIONAL,
//	    clientName               [4] OCTET STRING OPTIONAL,
//	    clientSessionID          [5] OCTET STRING OPTIONAL,
//	    clientRequestID          [6] OCTET STRING OPTIONAL }
type IntermediateClientRequestValue struct {
	DownstreamRequest       *IntermediateClientRequestValue
	DownstreamClientAddress *string
	DownstreamClientSecure  *bool
	ClientIdentity          *string
	ClientName              *string
	ClientSessionID         *string
	ClientRequestID         *string
}

func (v IntermediateClientRequestValue) clone() IntermediateClientRequestValue {
	out := IntermediateClientRequestValue{
		DownstreamClientAddress: copyString(v.DownstreamClientAddress),
		DownstreamClientSecure:  copyBool(v.DownstreamClientSecure),
		ClientIdentity:          copyString(v.ClientIdentity),
		ClientName:              copyString(v.ClientName),
		ClientSessionID:         copyString(v.ClientSessionID),
		ClientRequestID:         copyString(v.ClientRequestID),
	}
	if v.DownstreamRequest != nil {
		nested := v.DownstreamRequest.clone()
		out.DownstreamRequest = &nested
	}
	return out
}

func (v IntermediateClientRequestValue) element() ber.Element {
	var children []ber.Element
	if v.DownstreamRequest != nil {
		nested := v.DownstreamRequest.element()
		nested.Type = ber.ContextType(0, true)
		children = append(children, nested)
	}
	if v.DownstreamClientAddress != nil {
		children = append(children, ber.NewString(ber.ContextType(1, false), *v.DownstreamClientAddress))
	}
	if v.DownstreamClientSecure != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(2, false), *v.DownstreamClientSecure))
	}
	if v.ClientIdentity != nil {
		children = append(children, ber.NewString(ber.ContextType(3, false), *v.ClientIdentity))
	}
	if v.ClientName != nil {
		children = append(children, ber.NewString(ber.ContextType(4, false), *v.ClientName))
	}
	if v.ClientSessionID != nil {
		children = append(children, ber.NewString(ber.ContextType(5, false), *v.ClientSessionID))
	}
	if v.ClientRequestID != nil {
		children = append(children, ber.NewString(ber.ContextType(6, false), *v.ClientRequestID))
	}
	return ber.NewSequence(ber.TypeSequence, children...)
}

// IntermediateClientRequestControl lets a client or intermediary identify
// itself and the chain of clients it is forwarding for.
type IntermediateClientRequestControl struct {
	critical bool
	value    IntermediateClientRequestValue
}

// NewIntermediateClientRequestControl creates an intermediate client
// request control. The value is deep-copied, so later changes to it do not
// affect the control.
func NewIntermediateClientRequestControl(critical bool, value IntermediateClientRequestValue) *IntermediateClientRequestControl {
	return &IntermediateClientRequestControl{critical: critical, value: value.clone()}
}

// OID returns IntermediateClientOID.
func (c *IntermediateClientRequestControl) OID() string { return IntermediateClientOID }

// Name returns the human-readable control name.
func (c *IntermediateClientRequestControl) Name() string { return intermediateClientRequestName }

// Critical reports the control's criticality flag.
func (c *IntermediateClientRequestControl) Critical() bool { return c.critical }

// Value returns a deep copy of the control's value.
func (c *IntermediateClientRequestControl) Value() IntermediateClientRequestValue {
	return c.value.clone()
}

// Envelope re-encodes the control into its generic wire form.
func (c *IntermediateClientRequestControl) Envelope() ldap.Envelope {
	return mustEnvelope(IntermediateClientOID, c.critical, c.value.element().Encode())
}

// IntermediateClientResponseValue mirrors the request value on the way
// back: each hop describes itself and nests the response value of the
// server further upstream.
//
//	SEQUENCE {
//	    upstreamResponse      [0] SEQUENCE OPTIONAL,
//	    upstreamServerAddress [1] OCTET STRING OPTIONAL,
//	    upstreamServerSecure  [2] BOOLEAN OPTIONAL,
//	    serverName            [3] OCTET STRING OPTIONAL,
//	    serverSessionID       [4] OCTET STRING OPTIONAL,
//	    serverResponseID      [5] OCTET STRING OPTIONAL }
type IntermediateClientResponseValue struct {
	UpstreamResponse      *IntermediateClientResponseValue
	UpstreamServerAddress *string
	UpstreamServerSecure  *bool
	ServerName            *string
	ServerSessionID       *string
	ServerResponseID      *string
}

func (v IntermediateClientResponseValue) clone() IntermediateClientResponseValue {
	out := IntermediateClientResponseValue{
		UpstreamServerAddress: copyString(v.UpstreamServerAddress),
		UpstreamServerSecure:  copyBool(v.UpstreamServerSecure),
		ServerName:            copyString(v.ServerName),
		ServerSessionID:       copyString(v.ServerSessionID),
		ServerResponseID:      copyString(v.ServerResponseID),
	}
	if v.UpstreamResponse != nil {
		nested := v.UpstreamResponse.clone()
		out.UpstreamResponse = &nested
	}
	return out
}

func (v IntermediateClientResponseValue) element() ber.Element {
	var children []ber.Element
	if v.UpstreamResponse != nil {
		nested := v.UpstreamResponse.element()
		nested.Type = ber.ContextType(0, true)
		children = append(children, nested)
	}
	if v.UpstreamServerAddress != nil {
		children = append(children, ber.NewString(ber.ContextType(1, false), *v.UpstreamServerAddress))
	}
	if v.UpstreamServerSecure != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(2, false), *v.UpstreamServerSecure))
	}
	if v.ServerName != nil {
		children = append(children, ber.NewString(ber.ContextType(3, false), *v.ServerName))
	}
	if v.ServerSessionID != nil {
		children = append(children, ber.NewString(ber.ContextType(4, false), *v.ServerSessionID))
	}
	if v.ServerResponseID != nil {
		children = append(children, ber.NewString(ber.ContextType(5, false), *v.ServerResponseID))
	}
	return ber.NewSequence(ber.TypeSequence, children...)
}

func decodeIntermediateClientResponseValue(el ber.Element) (IntermediateClientResponseValue, error) {
	if !el.Type.Constructed() {
		return IntermediateClientResponseValue{}, decodeErr(ldap.KindMalformed,
			"intermediate client response value is not a constructed element")
	}
	children, err := el.Sequence()
	if err != nil {
		return IntermediateClientResponseValue{}, berErr(err, "intermediate client response value")
	}
	var v IntermediateClientResponseValue
	for _, child := range children {
		switch child.Type {
		case ber.ContextType(0, true):
			nested, err := decodeIntermediateClientResponseValue(child)
			if err != nil {
				return IntermediateClientResponseValue{}, err
			}
			v.UpstreamResponse = &nested
		case ber.ContextType(1, false):
			s := child.StringValue()
			v.UpstreamServerAddress = &s
		case ber.ContextType(2, false):
			b, err := child.Boolean()
			if err != nil {
				return IntermediateClientResponseValue{}, berErr(err, "upstream server secure flag")
			}
			v.UpstreamServerSecure = &b
		case ber.ContextType(3, false):
			s := child.StringValue()
			v.ServerName = &s
		case ber.ContextType(4, false):
			s := child.StringValue()
			v.ServerSessionID = &s
		case ber.ContextType(5, false):
			s := child.StringValue()
			v.ServerResponseID = &s
		default:
			return IntermediateClientResponseValue{}, decodeErr(ldap.KindUnexpectedTag,
				"intermediate client response value has an element with unexpected tag %s", child.Type)
		}
	}
	return v, nil
}

// IntermediateClientResponseControl reports the chain of servers that
// handled a request carrying an intermediate client request control.
type IntermediateClientResponseControl struct {
	critical bool
	value    IntermediateClientResponseValue
}

// NewIntermediateClientResponseControl creates an intermediate client
// response control. The value is deep-copied, so later changes to it do not
// affect the control.
func NewIntermediateClientResponseControl(value IntermediateClientResponseValue) *IntermediateClientResponseControl {
	return &IntermediateClientResponseControl{value: value.clone()}
}

// OID returns IntermediateClientOID.
func (c *IntermediateClientResponseControl) OID() string { return IntermediateClientOID }

// Name returns the human-readable control name.
func (c *IntermediateClientResponseControl) Name() string { return intermediateClientResponseName }

// Critical reports the control's criticality flag.
func (c *IntermediateClientResponseControl) Critical() bool { return c.critical }

// Value returns a deep copy of the control's value.
func (c *IntermediateClientResponseControl) Value() IntermediateClientResponseValue {
	return c.value.clone()
}

// Envelope re-encodes the control into its generic wire form.
func (c *IntermediateClientResponseControl) Envelope() ldap.Envelope {
	return mustEnvelope(IntermediateClientOID, c.critical, c.value.element().Encode())
}

func decodeIntermediateClientResponse(env ldap.Envelope) (ldap.Control, error) {
	value, ok := env.Value()
	if !ok {
		return nil, decodeErr(ldap.KindMissingField, "intermediate client response control has no value")
	}
	el, err := ber.Decode(value)
	if err != nil {
		return nil, berErr(err, "intermediate client response control value")
	}
	v, err := decodeIntermediateClientResponseValue(el)
	if err != nil {
		return nil, err
	}
	return &IntermediateClientResponseControl{critical: env.Critical(), value: v}, nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func init() {
	ldap.RegisterControl(IntermediateClientOID, decodeIntermediateClientResponse, nil)
}
