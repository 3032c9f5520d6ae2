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

// JoinResultOID identifies the join result control.
const JoinResultOID = "1.3.6.1.4.1.30221.2.5.9"

const joinResultName = "Join Result Control"

// JoinedEntry is an entry returned alongside the entries it was joined
// with, which may themselves carry further joined entries. The tree is
// purely a transport value: it owns its children, contains no cycles, and
// is never mutated after decode.
type JoinedEntry struct {
	DN            string
	Attributes    []ldap.Attribute
	NestedResults []JoinedEntry
}

// Element returns the wire form of the joined entry: a sequence of the DN,
// the attribute list, and the recursively-encoded nested results. Both
// inner sequences are present even when empty.
func (e JoinedEntry) Element() ber.Element {
	attrs := make([]ber.Element, len(e.Attributes))
	for i, a := range e.Attributes {
		attrs[i] = ldap.AttributeElement(a)
	}
	nested := make([]ber.Element, len(e.NestedResults))
	for i, n := range e.NestedResults {
		nested[i] = n.Element()
	}
	return ber.NewSequence(ber.TypeSequence,
		ber.NewString(ber.TypeOctetString, e.DN),
		ber.NewSequence(ber.TypeSequence, attrs...),
		ber.NewSequence(ber.TypeSequence, nested...),
	)
}

// DecodeJoinedEntry parses a joined entry element, recursing into nested
// results. Errors from nested entries propagate unchanged, so a failure
// deep in the tree reads the same as it would at the top. No depth limit is
// enforced here; depth is bounded by the maximum decodable message size.
func DecodeJoinedEntry(el ber.Element) (JoinedEntry, error) {
	if !el.Type.Constructed() {
		return JoinedEntry{}, decodeErr(ldap.KindMalformed, "joined entry is not a constructed element")
	}
	children, err := el.Sequence()
	if err != nil {
		return JoinedEntry{}, berErr(err, "joined entry")
	}
	if len(children) == 0 {
		return JoinedEntry{}, decodeErr(ldap.KindMissingField, "joined entry is missing its DN")
	}
	if len(children) != 3 {
		return JoinedEntry{}, decodeErr(ldap.KindMalformed,
			"joined entry has %d element(s), expected a DN, attributes, and nested results", len(children))
	}
	if err := ber.Expect(children[0], ber.TypeOctetString); err != nil {
		return JoinedEntry{}, berErr(err, "joined entry DN")
	}
	entry := JoinedEntry{DN: children[0].StringValue()}

	if err := ber.Expect(children[1], ber.TypeSequence); err != nil {
		return JoinedEntry{}, berErr(err, "joined entry attribute list")
	}
	attrEls, err := children[1].Sequence()
	if err != nil {
		return JoinedEntry{}, berErr(err, "joined entry attribute list")
	}
	for _, a := range attrEls {
		attr, err := ldap.DecodeAttribute(a)
		if err != nil {
			return JoinedEntry{}, err
		}
		entry.Attributes = append(entry.Attributes, attr)
	}

	if err := ber.Expect(children[2], ber.TypeSequence); err != nil {
		return JoinedEntry{}, berErr(err, "joined entry nested results")
	}
	nestedEls, err := children[2].Sequence()
	if err != nil {
		return JoinedEntry{}, berErr(err, "joined entry nested results")
	}
	for _, n := range nestedEls {
		nested, err := DecodeJoinedEntry(n)
		if err != nil {
			return JoinedEntry{}, err
		}
		entry.NestedResults = append(entry.NestedResults, nested)
	}
	return entry, nil
}

// Wire tags of the join result value:
//
//	SEQUENCE {
//	    resultCode        ENUMERATED,
//	    diagnosticMessage [0] OCTET STRING OPTIONAL,
//	    matchedDN         [1] OCTET STRING OPTIONAL,
//	    referralURLs      [2] SEQUENCE OF OCTET STRING OPTIONAL,
//	    joinedEntries     [3] SEQUENCE OF joinedEntry OPTIONAL }
const (
	joinTagDiagnostic = 0
	joinTagMatchedDN  = 1
	joinTagReferrals  = 2
	joinTagEntries    = 3
)

// JoinResultControl conveys the outcome of a join request along with the
// joined entries for one search result entry. Its value has no structured
// JSON form; the JSON representation falls back to value-base64.
type JoinResultControl struct {
	critical          bool
	resultCode        ldap.ResultCode
	diagnosticMessage string
	matchedDN         string
	referralURLs      []string
	entries           []JoinedEntry
}

// NewJoinResultControl creates a join result control. diagnosticMessage and
// matchedDN may be empty and referralURLs and entries may be nil.
func NewJoinResultControl(resultCode ldap.ResultCode, diagnosticMessage, matchedDN string, referralURLs []string, entries []JoinedEntry) *JoinResultControl {
	return &JoinResultControl{
		resultCode:        resultCode,
		diagnosticMessage: diagnosticMessage,
		matchedDN:         matchedDN,
		referralURLs:      append([]string(nil), referralURLs...),
		entries:           append([]JoinedEntry(nil), entries...),
	}
}

// OID returns JoinResultOID.
func (c *JoinResultControl) OID() string { return JoinResultOID }

// Name returns the human-readable control name.
func (c *JoinResultControl) Name() string { return joinResultName }

// Critical reports the control's criticality flag.
func (c *JoinResultControl) Critical() bool { return c.critical }

// ResultCode returns the join outcome.
func (c *JoinResultControl) ResultCode() ldap.ResultCode { return c.resultCode }

// DiagnosticMessage returns the server's diagnostic message, if any.
func (c *JoinResultControl) DiagnosticMessage() string { return c.diagnosticMessage }

// MatchedDN returns the matched DN, if any.
func (c *JoinResultControl) MatchedDN() string { return c.matchedDN }

// ReferralURLs returns the referral URLs in order.
func (c *JoinResultControl) ReferralURLs() []string {
	return append([]string(nil), c.referralURLs...)
}

// Entries returns the joined entries in order. The returned slice is the
// caller's; the trees it shares with the control must not be mutated.
func (c *JoinResultControl) Entries() []JoinedEntry {
	return append([]JoinedEntry(nil), c.entries...)
}

// Envelope re-encodes the control into its generic wire form.
func (c *JoinResultControl) Envelope() ldap.Envelope {
	children := make([]ber.Element, 0, 5)
	children = append(children, ber.NewInteger(ber.TypeEnumerated, int64(c.resultCode)))
	if c.diagnosticMessage != "" {
		children = append(children, ber.NewString(ber.ContextType(joinTagDiagnostic, false), c.diagnosticMessage))
	}
	if c.matchedDN != "" {
		children = append(children, ber.NewString(ber.ContextType(joinTagMatchedDN, false), c.matchedDN))
	}
	if len(c.referralURLs) > 0 {
		urls := make([]ber.Element, len(c.referralURLs))
		for i, u := range c.referralURLs {
			urls[i] = ber.NewString(ber.TypeOctetString, u)
		}
		children = append(children, ber.NewSequence(ber.ContextType(joinTagReferrals, true), urls...))
	}
	if len(c.entries) > 0 {
		entries := make([]ber.Element, len(c.entries))
		for i, e := range c.entries {
			entries[i] = e.Element()
		}
		children = append(children, ber.NewSequence(ber.ContextType(joinTagEntries, true), entries...))
	}
	value := ber.NewSequence(ber.TypeSequence, children...).Encode()
	return mustEnvelope(JoinResultOID, c.critical, value)
}

func decodeJoinResult(env ldap.Envelope) (ldap.Control, error) {
	children, err := requireValueSequence(env, "join result")
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, decodeErr(ldap.KindMissingField, "join result is missing its result code")
	}
	if err := ber.Expect(children[0], ber.TypeEnumerated); err != nil {
		return nil, berErr(err, "join result result code")
	}
	code, err := children[0].Enumerated()
	if err != nil {
		return nil, berErr(err, "join result result code")
	}

	c := &JoinResultControl{critical: env.Critical(), resultCode: ldap.ResultCode(code)}
	for _, child := range children[1:] {
		switch child.Type {
		case ber.ContextType(joinTagDiagnostic, false):
			c.diagnosticMessage = child.StringValue()
		case ber.ContextType(joinTagMatchedDN, false):
			c.matchedDN = child.StringValue()
		case ber.ContextType(joinTagReferrals, true):
			urls, err := child.Sequence()
			if err != nil {
				return nil, berErr(err, "join result referral URLs")
			}
			for _, u := range urls {
				if err := ber.Expect(u, ber.TypeOctetString); err != nil {
					return nil, berErr(err, "join result referral URL")
				}
				c.referralURLs = append(c.referralURLs, u.StringValue())
			}
		case ber.ContextType(joinTagEntries, true):
			entryEls, err := child.Sequence()
			if err != nil {
				return nil, berErr(err, "join result entries")
			}
			for _, e := range entryEls {
				entry, err := DecodeJoinedEntry(e)
				if err != nil {
					return nil, err
				}
				c.entries = append(c.entries, entry)
			}
		default:
			return nil, decodeErr(ldap.KindUnexpectedTag,
				"join result has an element with unexpected tag %s", child.Type)
		}
	}
	return c, nil
}

func init() {
	ldap.RegisterControl(JoinResultOID, decodeJoinResult, nil)
}
