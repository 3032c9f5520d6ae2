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

// OIDs of the matching entry count request and response controls.
const (
	MatchingEntryCountRequestOID  = "1.3.6.1.4.1.30221.2.5.36"
	MatchingEntryCountResponseOID = "1.3.6.1.4.1.30221.2.5.37"
)

// CountType discriminates the count variants a matching entry count response
// can carry. Exactly one variant is present per response; only Unknown
// carries no count value.
type CountType int

const (
	// CountTypeExamined is an exact count of entries actually examined.
	CountTypeExamined CountType = iota
	// CountTypeUnexamined is an exact count derived without examining the
	// candidate entries.
	CountTypeUnexamined
	// CountTypeUpperBound is a non-exact upper bound on the number of
	// matching entries.
	CountTypeUpperBound
	// CountTypeUnknown means the server could not determine a count.
	CountTypeUnknown
)

// String returns the JSON token for the count type.
func (t CountType) String() string {
	switch t {
	case CountTypeExamined:
		return "examined-count"
	case CountTypeUnexamined:
		return "unexamined-count"
	case CountTypeUpperBound:
		return "upper-bound"
	case CountTypeUnknown:
		return "unknown"
	}
	return "invalid"
}

func countTypeFromToken(token string) (CountType, bool) {
	switch token {
	case "examined-count":
		return CountTypeExamined, true
	case "unexamined-count":
		return CountTypeUnexamined, true
	case "upper-bound":
		return CountTypeUpperBound, true
	case "unknown":
		return CountTypeUnknown, true
	}
	return 0, false
}

// Wire tags of the matching entry count response value:
//
//	SEQUENCE {
//	    examinedCount        [0] INTEGER,         -- exactly one of [0]..[3]
//	    unexaminedCount      [1] INTEGER,
//	    upperBound           [2] INTEGER,
//	    unknown              [3] NULL,
//	    debugInfo            [4] SEQUENCE OF OCTET STRING OPTIONAL,
//	    searchIndexed        [5] BOOLEAN DEFAULT TRUE,
//	    shortCircuited       [6] BOOLEAN OPTIONAL,
//	    fullyIndexed         [7] BOOLEAN OPTIONAL,
//	    candidatesAreInScope [8] BOOLEAN OPTIONAL,
//	    remainingFilter      [9] OCTET STRING OPTIONAL }
const (
	mecTagExaminedCount   = 0
	mecTagUnexaminedCount = 1
	mecTagUpperBound      = 2
	mecTagUnknown         = 3
	mecTagDebugInfo       = 4
	mecTagSearchIndexed   = 5
	mecTagShortCircuited  = 6
	mecTagFullyIndexed    = 7
	mecTagCandidatesScope = 8
	mecTagRemainingFilter = 9
)

const mecResponseName = "Matching Entry Count Response Control"

// MatchingEntryCountResponseControl reports how many entries match a search,
// along with optional details about how the server arrived at the count.
type MatchingEntryCountResponseControl struct {
	critical             bool
	countType            CountType
	countValue           int
	searchIndexed        bool
	shortCircuited       *bool
	fullyIndexed         *bool
	candidatesAreInScope *bool
	remainingFilter      *string
	debugInfo            []string
}

// MatchingEntryCountOption configures optional fields of a matching entry
// count response.
type MatchingEntryCountOption func(*MatchingEntryCountResponseControl)

// WithDebugInfo attaches debug lines describing how the count was obtained.
func WithDebugInfo(lines ...string) MatchingEntryCountOption {
	return func(c *MatchingEntryCountResponseControl) {
		c.debugInfo = append([]string(nil), lines...)
	}
}

// WithShortCircuited records whether the server short-circuited during
// candidate processing.
func WithShortCircuited(v bool) MatchingEntryCountOption {
	return func(c *MatchingEntryCountResponseControl) { c.shortCircuited = &v }
}

// WithFullyIndexed records whether the search was fully indexed.
func WithFullyIndexed(v bool) MatchingEntryCountOption {
	return func(c *MatchingEntryCountResponseControl) { c.fullyIndexed = &v }
}

// WithCandidatesAreInScope records whether all candidates were already
// within the search scope.
func WithCandidatesAreInScope(v bool) MatchingEntryCountOption {
	return func(c *MatchingEntryCountResponseControl) { c.candidatesAreInScope = &v }
}

// WithRemainingFilter records the filter portion that was not evaluated from
// indexes.
func WithRemainingFilter(filter string) MatchingEntryCountOption {
	return func(c *MatchingEntryCountResponseControl) { c.remainingFilter = &filter }
}

// NewExaminedCountResponseControl creates a response carrying an exact count
// obtained by examining entries. The count must not be negative.
func NewExaminedCountResponseControl(count int, searchIndexed bool, opts ...MatchingEntryCountOption) (*MatchingEntryCountResponseControl, error) {
	if count < 0 {
		return nil, ldap.NewUsageError("examined count must not be negative (got %d)", count)
	}
	return newMatchingEntryCountResponse(CountTypeExamined, count, searchIndexed, opts), nil
}

// NewUnexaminedCountResponseControl creates a response carrying an exact
// count obtained without examining entries. The count must not be negative.
func NewUnexaminedCountResponseControl(count int, searchIndexed bool, opts ...MatchingEntryCountOption) (*MatchingEntryCountResponseControl, error) {
	if count < 0 {
		return nil, ldap.NewUsageError("unexamined count must not be negative (got %d)", count)
	}
	return newMatchingEntryCountResponse(CountTypeUnexamined, count, searchIndexed, opts), nil
}

// NewUpperBoundCountResponseControl creates a response carrying an upper
// bound on the matching entry count. The bound must be positive.
func NewUpperBoundCountResponseControl(count int, searchIndexed bool, opts ...MatchingEntryCountOption) (*MatchingEntryCountResponseControl, error) {
	if count <= 0 {
		return nil, ldap.NewUsageError("upper bound count must be positive (got %d)", count)
	}
	return newMatchingEntryCountResponse(CountTypeUpperBound, count, searchIndexed, opts), nil
}

// NewUnknownCountResponseControl creates a response reporting that the count
// could not be determined.
func NewUnknownCountResponseControl(searchIndexed bool, opts ...MatchingEntryCountOption) *MatchingEntryCountResponseControl {
	return newMatchingEntryCountResponse(CountTypeUnknown, 0, searchIndexed, opts)
}

func newMatchingEntryCountResponse(ct CountType, count int, searchIndexed bool, opts []MatchingEntryCountOption) *MatchingEntryCountResponseControl {
	c := &MatchingEntryCountResponseControl{
		countType:     ct,
		countValue:    count,
		searchIndexed: searchIndexed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OID returns MatchingEntryCountResponseOID.
func (c *MatchingEntryCountResponseControl) OID() string { return MatchingEntryCountResponseOID }

// Name returns the human-readable control name.
func (c *MatchingEntryCountResponseControl) Name() string { return mecResponseName }

// Critical reports the control's criticality flag.
func (c *MatchingEntryCountResponseControl) Critical() bool { return c.critical }

// CountType returns the variant of count the response carries.
func (c *MatchingEntryCountResponseControl) CountType() CountType { return c.countType }

// CountValue returns the count and true, or zero and false when the count
// type is Unknown.
func (c *MatchingEntryCountResponseControl) CountValue() (int, bool) {
	if c.countType == CountTypeUnknown {
		return 0, false
	}
	return c.countValue, true
}

// SearchIndexed reports whether the search was at least partially served
// from indexes.
func (c *MatchingEntryCountResponseControl) SearchIndexed() bool { return c.searchIndexed }

// ShortCircuited returns the short-circuited flag, or nil when the server
// did not report it.
func (c *MatchingEntryCountResponseControl) ShortCircuited() *bool {
	return copyBool(c.shortCircuited)
}

// FullyIndexed returns the fully-indexed flag, or nil when the server did
// not report it.
func (c *MatchingEntryCountResponseControl) FullyIndexed() *bool {
	return copyBool(c.fullyIndexed)
}

// CandidatesAreInScope returns the candidates-are-in-scope flag, or nil when
// the server did not report it.
func (c *MatchingEntryCountResponseControl) CandidatesAreInScope() *bool {
	return copyBool(c.candidatesAreInScope)
}

// RemainingFilter returns the unindexed filter portion, or nil when the
// server did not report one.
func (c *MatchingEntryCountResponseControl) RemainingFilter() *string {
	if c.remainingFilter == nil {
		return nil
	}
	v := *c.remainingFilter
	return &v
}

// DebugInfo returns the server's debug lines in order.
func (c *MatchingEntryCountResponseControl) DebugInfo() []string {
	return append([]string(nil), c.debugInfo...)
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Envelope re-encodes the control into its generic wire form.
func (c *MatchingEntryCountResponseControl) Envelope() ldap.Envelope {
	children := make([]ber.Element, 0, 7)
	switch c.countType {
	case CountTypeExamined:
		children = append(children, ber.NewInteger(ber.ContextType(mecTagExaminedCount, false), int64(c.countValue)))
	case CountTypeUnexamined:
		children = append(children, ber.NewInteger(ber.ContextType(mecTagUnexaminedCount, false), int64(c.countValue)))
	case CountTypeUpperBound:
		children = append(children, ber.NewInteger(ber.ContextType(mecTagUpperBound, false), int64(c.countValue)))
	case CountTypeUnknown:
		children = append(children, ber.NewNull(ber.ContextType(mecTagUnknown, false)))
	}
	if len(c.debugInfo) > 0 {
		lines := make([]ber.Element, len(c.debugInfo))
		for i, line := range c.debugInfo {
			lines[i] = ber.NewString(ber.TypeOctetString, line)
		}
		children = append(children, ber.NewSequence(ber.ContextType(mecTagDebugInfo, true), lines...))
	}
	if !c.searchIndexed {
		children = append(children, ber.NewBoolean(ber.ContextType(mecTagSearchIndexed, false), false))
	}
	if c.shortCircuited != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(mecTagShortCircuited, false), *c.shortCircuited))
	}
	if c.fullyIndexed != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(mecTagFullyIndexed, false), *c.fullyIndexed))
	}
	if c.candidatesAreInScope != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(mecTagCandidatesScope, false), *c.candidatesAreInScope))
	}
	if c.remainingFilter != nil {
		children = append(children, ber.NewString(ber.ContextType(mecTagRemainingFilter, false), *c.remainingFilter))
	}
	value := ber.NewSequence(ber.TypeSequence, children...).Encode()
	return mustEnvelope(MatchingEntryCountResponseOID, c.critical, value)
}

// AppendValueJSON renders the structured value object.
func (c *MatchingEntryCountResponseControl) AppendValueJSON(dst []byte) ([]byte, bool) {
	dst = append(dst, '{')
	dst = jsonutil.AppendKey(dst, "count-type")
	dst = jsonutil.AppendString(dst, c.countType.String())
	if c.countType != CountTypeUnknown {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "count-value")
		dst = jsonutil.AppendInt(dst, int64(c.countValue))
	}
	dst = append(dst, ',')
	dst = jsonutil.AppendKey(dst, "search-indexed")
	dst = jsonutil.AppendBool(dst, c.searchIndexed)
	if c.fullyIndexed != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "fully-indexed")
		dst = jsonutil.AppendBool(dst, *c.fullyIndexed)
	}
	if c.shortCircuited != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "short-circuited")
		dst = jsonutil.AppendBool(dst, *c.shortCircuited)
	}
	if c.candidatesAreInScope != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "candidates-are-in-scope")
		dst = jsonutil.AppendBool(dst, *c.candidatesAreInScope)
	}
	if c.remainingFilter != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "remaining-filter")
		dst = jsonutil.AppendString(dst, *c.remainingFilter)
	}
	if len(c.debugInfo) > 0 {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "debug-info")
		dst = append(dst, '[')
		for i, line := range c.debugInfo {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = jsonutil.AppendString(dst, line)
		}
		dst = append(dst, ']')
	}
	return append(dst, '}'), true
}

func decodeMatchingEntryCountResponse(env ldap.Envelope) (ldap.Control, error) {
	children, err := requireValueSequence(env, "matching entry count response")
	if err != nil {
		return nil, err
	}

	c := &MatchingEntryCountResponseControl{
		critical:      env.Critical(),
		searchIndexed: true,
	}
	countSeen := false

	setCount := func(ct CountType, el ber.Element, context string, allowZero bool) error {
		if countSeen {
			return decodeErr(ldap.KindConflictingFields,
				"matching entry count response has multiple count variants")
		}
		countSeen = true
		v, err := el.Int64()
		if err != nil {
			return berErr(err, context)
		}
		if v < 0 || (!allowZero && v == 0) {
			return decodeErr(ldap.KindMalformed, "%s has invalid count %d", context, v)
		}
		c.countType = ct
		c.countValue = int(v)
		return nil
	}

	for _, child := range children {
		switch child.Type {
		case ber.ContextType(mecTagExaminedCount, false):
			if err := setCount(CountTypeExamined, child, "examined count", true); err != nil {
				return nil, err
			}
		case ber.ContextType(mecTagUnexaminedCount, false):
			if err := setCount(CountTypeUnexamined, child, "unexamined count", true); err != nil {
				return nil, err
			}
		case ber.ContextType(mecTagUpperBound, false):
			if err := setCount(CountTypeUpperBound, child, "upper bound count", false); err != nil {
				return nil, err
			}
		case ber.ContextType(mecTagUnknown, false):
			if countSeen {
				return nil, decodeErr(ldap.KindConflictingFields,
					"matching entry count response has multiple count variants")
			}
			countSeen = true
			if len(child.Value) != 0 {
				return nil, decodeErr(ldap.KindConflictingFields,
					"matching entry count response supplies a count value for an unknown count")
			}
			c.countType = CountTypeUnknown
		case ber.ContextType(mecTagDebugInfo, true):
			lines, err := child.Sequence()
			if err != nil {
				return nil, berErr(err, "debug info")
			}
			c.debugInfo = make([]string, len(lines))
			for i, line := range lines {
				if err := ber.Expect(line, ber.TypeOctetString); err != nil {
					return nil, berErr(err, "debug info line")
				}
				c.debugInfo[i] = line.StringValue()
			}
		case ber.ContextType(mecTagSearchIndexed, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "search indexed flag")
			}
			c.searchIndexed = v
		case ber.ContextType(mecTagShortCircuited, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "short circuited flag")
			}
			c.shortCircuited = &v
		case ber.ContextType(mecTagFullyIndexed, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "fully indexed flag")
			}
			c.fullyIndexed = &v
		case ber.ContextType(mecTagCandidatesScope, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "candidates are in scope flag")
			}
			c.candidatesAreInScope = &v
		case ber.ContextType(mecTagRemainingFilter, false):
			s := child.StringValue()
			c.remainingFilter = &s
		default:
			return nil, decodeErr(ldap.KindUnexpectedTag,
				"matching entry count response has an element with unexpected tag %s", child.Type)
		}
	}

	if !countSeen {
		return nil, decodeErr(ldap.KindMissingField,
			"matching entry count response is missing its count variant")
	}
	return c, nil
}

func decodeMatchingEntryCountResponseJSON(oid string, critical bool, value []byte, strict bool) (ldap.Control, error) {
	var (
		countTypeSeen     bool
		countType         CountType
		countValueSeen    bool
		countValue        int64
		searchIndexedSeen bool
	)
	c := &MatchingEntryCountResponseControl{critical: critical}

	const name = "matching entry count response"
	err := walkValueObject(value, strict, name, map[string]func([]byte, jsonparser.ValueType) error{
		"count-type": func(v []byte, dt jsonparser.ValueType) error {
			s, err := parseJSONString(name, "count-type", v, dt)
			if err != nil {
				return err
			}
			ct, ok := countTypeFromToken(s)
			if !ok {
				return decodeErr(ldap.KindMalformed, "unrecognized count-type %q", s)
			}
			countTypeSeen = true
			countType = ct
			return nil
		},
		"count-value": func(v []byte, dt jsonparser.ValueType) error {
			i, err := parseJSONInt(name, "count-value", v, dt)
			if err != nil {
				return err
			}
			countValueSeen = true
			countValue = i
			return nil
		},
		"search-indexed": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "search-indexed", v, dt)
			if err != nil {
				return err
			}
			searchIndexedSeen = true
			c.searchIndexed = b
			return nil
		},
		"fully-indexed": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "fully-indexed", v, dt)
			if err != nil {
				return err
			}
			c.fullyIndexed = &b
			return nil
		},
		"short-circuited": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "short-circuited", v, dt)
			if err != nil {
				return err
			}
			c.shortCircuited = &b
			return nil
		},
		"candidates-are-in-scope": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "candidates-are-in-scope", v, dt)
			if err != nil {
				return err
			}
			c.candidatesAreInScope = &b
			return nil
		},
		"remaining-filter": func(v []byte, dt jsonparser.ValueType) error {
			s, err := parseJSONString(name, "remaining-filter", v, dt)
			if err != nil {
				return err
			}
			c.remainingFilter = &s
			return nil
		},
		"debug-info": func(v []byte, dt jsonparser.ValueType) error {
			if dt != jsonparser.Array {
				return decodeErr(ldap.KindMalformed, "%s value field debug-info is a %s, not an array", name, dt)
			}
			var lineErr error
			_, err := jsonparser.ArrayEach(v, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
				if lineErr != nil {
					return
				}
				if itemType != jsonparser.String {
					lineErr = decodeErr(ldap.KindMalformed, "%s debug-info entries must be strings, found a %s", name, itemType)
					return
				}
				s, err := jsonparser.ParseString(item)
				if err != nil {
					lineErr = decodeErr(ldap.KindMalformed, "%s debug-info entry: %v", name, err)
					return
				}
				c.debugInfo = append(c.debugInfo, s)
			})
			if lineErr != nil {
				return lineErr
			}
			if err != nil {
				return decodeErr(ldap.KindMalformed, "%s value field debug-info: %v", name, err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if !countTypeSeen {
		return nil, decodeErr(ldap.KindMissingField, "matching entry count response value is missing count-type")
	}
	if !searchIndexedSeen {
		return nil, decodeErr(ldap.KindMissingField, "matching entry count response value is missing search-indexed")
	}
	if countType == CountTypeUnknown {
		if countValueSeen {
			return nil, decodeErr(ldap.KindConflictingFields,
				"count-value must not be present when count-type is unknown")
		}
	} else {
		if !countValueSeen {
			return nil, decodeErr(ldap.KindMissingField,
				"count-value is required when count-type is %s", countType)
		}
		if countValue < 0 || (countType == CountTypeUpperBound && countValue == 0) {
			return nil, decodeErr(ldap.KindMalformed, "count-value %d is invalid for count-type %s", countValue, countType)
		}
		c.countValue = int(countValue)
	}
	c.countType = countType
	return c, nil
}

func init() {
	ldap.RegisterControl(MatchingEntryCountResponseOID,
		decodeMatchingEntryCountResponse, decodeMatchingEntryCountResponseJSON)
	ldap.RegisterControl(MatchingEntryCountRequestOID,
		decodeMatchingEntryCountRequest, decodeMatchingEntryCountRequestJSON)
}
