// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package controls

import (
	"github.com/buger/jsonparser"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/internal/jsonutil"
	"github.com/dirkit/ldap-go-driver/ldap"
)

// Wire tags of the matching entry count request value:
//
//	SEQUENCE {
//	    maxCandidatesToExamine   [0] INTEGER OPTIONAL,
//	    alwaysExamineCandidates  [1] BOOLEAN OPTIONAL,
//	    processSearchIfUnindexed [2] BOOLEAN OPTIONAL,
//	    includeDebugInfo         [3] BOOLEAN OPTIONAL }
const (
	mecReqTagMaxCandidates      = 0
	mecReqTagAlwaysExamine      = 1
	mecReqTagProcessIfUnindexed = 2
	mecReqTagIncludeDebugInfo   = 3
)

const mecRequestName = "Matching Entry Count Request Control"

// MatchingEntryCountRequestControl asks the server to return a matching
// entry count response control with the search result.
type MatchingEntryCountRequestControl struct {
	critical           bool
	maxCandidates      int
	alwaysExamine      bool
	processIfUnindexed bool
	includeDebugInfo   bool
}

// MatchingEntryCountRequestOption configures optional fields of a matching
// entry count request.
type MatchingEntryCountRequestOption func(*MatchingEntryCountRequestControl)

// WithMaxCandidatesToExamine caps the number of candidate entries the server
// examines while computing the count. Zero means no client-requested cap.
func WithMaxCandidatesToExamine(n int) MatchingEntryCountRequestOption {
	return func(c *MatchingEntryCountRequestControl) { c.maxCandidates = n }
}

// WithAlwaysExamineCandidates asks the server to examine candidates even
// when the count could be derived from indexes alone.
func WithAlwaysExamineCandidates(v bool) MatchingEntryCountRequestOption {
	return func(c *MatchingEntryCountRequestControl) { c.alwaysExamine = v }
}

// WithProcessSearchIfUnindexed asks the server to attempt the count even for
// searches it cannot serve from indexes.
func WithProcessSearchIfUnindexed(v bool) MatchingEntryCountRequestOption {
	return func(c *MatchingEntryCountRequestControl) { c.processIfUnindexed = v }
}

// WithIncludeDebugInfo asks the server to include debug lines describing how
// the count was determined.
func WithIncludeDebugInfo(v bool) MatchingEntryCountRequestOption {
	return func(c *MatchingEntryCountRequestControl) { c.includeDebugInfo = v }
}

// NewMatchingEntryCountRequestControl creates a matching entry count request
// control.
func NewMatchingEntryCountRequestControl(critical bool, opts ...MatchingEntryCountRequestOption) (*MatchingEntryCountRequestControl, error) {
	c := &MatchingEntryCountRequestControl{critical: critical}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxCandidates < 0 {
		return nil, ldap.NewUsageError("max candidates to examine must not be negative (got %d)", c.maxCandidates)
	}
	return c, nil
}

// OID returns MatchingEntryCountRequestOID.
func (c *MatchingEntryCountRequestControl) OID() string { return MatchingEntryCountRequestOID }

// Name returns the human-readable control name.
func (c *MatchingEntryCountRequestControl) Name() string { return mecRequestName }

// Critical reports the control's criticality flag.
func (c *MatchingEntryCountRequestControl) Critical() bool { return c.critical }

// MaxCandidatesToExamine returns the requested candidate examination cap;
// zero means no cap was requested.
func (c *MatchingEntryCountRequestControl) MaxCandidatesToExamine() int { return c.maxCandidates }

// AlwaysExamineCandidates reports whether candidates should be examined even
// when indexes suffice.
func (c *MatchingEntryCountRequestControl) AlwaysExamineCandidates() bool { return c.alwaysExamine }

// ProcessSearchIfUnindexed reports whether unindexed searches should still
// be counted.
func (c *MatchingEntryCountRequestControl) ProcessSearchIfUnindexed() bool {
	return c.processIfUnindexed
}

// IncludeDebugInfo reports whether the server should include debug lines in
// its response.
func (c *MatchingEntryCountRequestControl) IncludeDebugInfo() bool { return c.includeDebugInfo }

// Envelope re-encodes the control into its generic wire form. Fields left
// at their defaults are omitted from the value.
func (c *MatchingEntryCountRequestControl) Envelope() ldap.Envelope {
	children := make([]ber.Element, 0, 4)
	if c.maxCandidates > 0 {
		children = append(children, ber.NewInteger(ber.ContextType(mecReqTagMaxCandidates, false), int64(c.maxCandidates)))
	}
	if c.alwaysExamine {
		children = append(children, ber.NewBoolean(ber.ContextType(mecReqTagAlwaysExamine, false), true))
	}
	if c.processIfUnindexed {
		children = append(children, ber.NewBoolean(ber.ContextType(mecReqTagProcessIfUnindexed, false), true))
	}
	if c.includeDebugInfo {
		children = append(children, ber.NewBoolean(ber.ContextType(mecReqTagIncludeDebugInfo, false), true))
	}
	value := ber.NewSequence(ber.TypeSequence, children...).Encode()
	return mustEnvelope(MatchingEntryCountRequestOID, c.critical, value)
}

// AppendValueJSON renders the structured value object. The object is always
// present, possibly empty, mirroring the always-present binary value.
func (c *MatchingEntryCountRequestControl) AppendValueJSON(dst []byte) ([]byte, bool) {
	dst = append(dst, '{')
	first := true
	comma := func() {
		if !first {
			dst = append(dst, ',')
		}
		first = false
	}
	if c.maxCandidates > 0 {
		comma()
		dst = jsonutil.AppendKey(dst, "max-candidates-to-examine")
		dst = jsonutil.AppendInt(dst, int64(c.maxCandidates))
	}
	if c.alwaysExamine {
		comma()
		dst = jsonutil.AppendKey(dst, "always-examine-candidates")
		dst = jsonutil.AppendBool(dst, true)
	}
	if c.processIfUnindexed {
		comma()
		dst = jsonutil.AppendKey(dst, "process-search-if-unindexed")
		dst = jsonutil.AppendBool(dst, true)
	}
	if c.includeDebugInfo {
		comma()
		dst = jsonutil.AppendKey(dst, "include-debug-info")
		dst = jsonutil.AppendBool(dst, true)
	}
	return append(dst, '}'), true
}

func decodeMatchingEntryCountRequest(env ldap.Envelope) (ldap.Control, error) {
	children, err := requireValueSequence(env, "matching entry count request")
	if err != nil {
		return nil, err
	}
	c := &MatchingEntryCountRequestControl{critical: env.Critical()}
	for _, child := range children {
		switch child.Type {
		case ber.ContextType(mecReqTagMaxCandidates, false):
			v, err := child.Int64()
			if err != nil {
				return nil, berErr(err, "max candidates to examine")
			}
			if v < 0 {
				return nil, decodeErr(ldap.KindMalformed, "max candidates to examine is negative (%d)", v)
			}
			c.maxCandidates = int(v)
		case ber.ContextType(mecReqTagAlwaysExamine, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "always examine candidates flag")
			}
			c.alwaysExamine = v
		case ber.ContextType(mecReqTagProcessIfUnindexed, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "process search if unindexed flag")
			}
			c.processIfUnindexed = v
		case ber.ContextType(mecReqTagIncludeDebugInfo, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "include debug info flag")
			}
			c.includeDebugInfo = v
		default:
			return nil, decodeErr(ldap.KindUnexpectedTag,
				"matching entry count request has an element with unexpected tag %s", child.Type)
		}
	}
	return c, nil
}

func decodeMatchingEntryCountRequestJSON(oid string, critical bool, value []byte, strict bool) (ldap.Control, error) {
	c := &MatchingEntryCountRequestControl{critical: critical}

	const name = "matching entry count request"
	err := walkValueObject(value, strict, name, map[string]func([]byte, jsonparser.ValueType) error{
		"max-candidates-to-examine": func(v []byte, dt jsonparser.ValueType) error {
			i, err := parseJSONInt(name, "max-candidates-to-examine", v, dt)
			if err != nil {
				return err
			}
			if i < 0 {
				return decodeErr(ldap.KindMalformed, "max-candidates-to-examine is negative (%d)", i)
			}
			c.maxCandidates = int(i)
			return nil
		},
		"always-examine-candidates": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "always-examine-candidates", v, dt)
			if err != nil {
				return err
			}
			c.alwaysExamine = b
			return nil
		},
		"process-search-if-unindexed": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "process-search-if-unindexed", v, dt)
			if err != nil {
				return err
			}
			c.processIfUnindexed = b
			return nil
		},
		"include-debug-info": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "include-debug-info", v, dt)
			if err != nil {
				return err
			}
			c.includeDebugInfo = b
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
