// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"strings"

	"github.com/dirkit/ldap-go-driver/ber"
)

// FilterType discriminates the search filter variants of RFC 4511 section
// 4.5.1. The values double as the context-specific wire tags.
type FilterType byte

const (
	FilterTypeAnd            FilterType = 0
	FilterTypeOr             FilterType = 1
	FilterTypeNot            FilterType = 2
	FilterTypeEquality       FilterType = 3
	FilterTypeSubstrings     FilterType = 4
	FilterTypeGreaterOrEqual FilterType = 5
	FilterTypeLessOrEqual    FilterType = 6
	FilterTypePresent        FilterType = 7
	FilterTypeApprox         FilterType = 8
)

// filterTypeNames maps filter types to the operator spelling used in error
// messages.
var filterTypeNames = map[FilterType]string{
	FilterTypeAnd:            "and",
	FilterTypeOr:             "or",
	FilterTypeNot:            "not",
	FilterTypeEquality:       "equality",
	FilterTypeSubstrings:     "substrings",
	FilterTypeGreaterOrEqual: "greater-or-equal",
	FilterTypeLessOrEqual:    "less-or-equal",
	FilterTypePresent:        "present",
	FilterTypeApprox:         "approximate",
}

// String returns the operator name of t.
func (t FilterType) String() string {
	if name, ok := filterTypeNames[t]; ok {
		return name
	}
	return "invalid"
}

// Filter is a search filter tree. Which fields are meaningful depends on
// Type: And and Or use Filters, Not uses Filters with exactly one element,
// Present uses only Attribute, Substrings uses Attribute with
// Initial/Any/Final, and the remaining comparisons use Attribute and Value.
// Filters are plain values; the constructors below build well-formed ones.
type Filter struct {
	Type      FilterType
	Attribute string
	Value     string
	Initial   string
	Any       []string
	Final     string
	Filters   []Filter
}

// And returns a filter matching entries that match every subfilter. With no
// subfilters it is the RFC 4526 absolute-true filter.
func And(filters ...Filter) Filter {
	return Filter{Type: FilterTypeAnd, Filters: filters}
}

// Or returns a filter matching entries that match any subfilter. With no
// subfilters it is the RFC 4526 absolute-false filter.
func Or(filters ...Filter) Filter {
	return Filter{Type: FilterTypeOr, Filters: filters}
}

// Not returns a filter matching entries that do not match f.
func Not(f Filter) Filter {
	return Filter{Type: FilterTypeNot, Filters: []Filter{f}}
}

// Equality returns an equalityMatch filter.
func Equality(attribute, value string) Filter {
	return Filter{Type: FilterTypeEquality, Attribute: attribute, Value: value}
}

// GreaterOrEqual returns a greaterOrEqual ordering filter.
func GreaterOrEqual(attribute, value string) Filter {
	return Filter{Type: FilterTypeGreaterOrEqual, Attribute: attribute, Value: value}
}

// LessOrEqual returns a lessOrEqual ordering filter.
func LessOrEqual(attribute, value string) Filter {
	return Filter{Type: FilterTypeLessOrEqual, Attribute: attribute, Value: value}
}

// Approx returns an approxMatch filter.
func Approx(attribute, value string) Filter {
	return Filter{Type: FilterTypeApprox, Attribute: attribute, Value: value}
}

// Present returns a present filter matching entries that have the attribute
// at all.
func Present(attribute string) Filter {
	return Filter{Type: FilterTypePresent, Attribute: attribute}
}

// Substrings returns a substrings filter. Empty initial and final parts are
// simply absent; empty strings in any are not allowed and fail at encode
// time.
func Substrings(attribute, initial string, any []string, final string) Filter {
	return Filter{
		Type:      FilterTypeSubstrings,
		Attribute: attribute,
		Initial:   initial,
		Any:       append([]string(nil), any...),
		Final:     final,
	}
}

// ParseFilter parses the RFC 4515 string form of a search filter. The input
// must be fully parenthesized.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, newDecodeError(KindMalformed, "filter is empty")
	}
	f, next, err := parseFilterExpr(s, 0)
	if err != nil {
		return Filter{}, err
	}
	if next != len(s) {
		return Filter{}, newDecodeError(KindMalformed,
			"unexpected trailing data at offset %d in filter", next)
	}
	return f, nil
}

func parseFilterExpr(s string, i int) (Filter, int, error) {
	if i >= len(s) || s[i] != '(' {
		return Filter{}, 0, newDecodeError(KindMalformed,
			"expected '(' at offset %d in filter", i)
	}
	i++
	if i >= len(s) {
		return Filter{}, 0, newDecodeError(KindMalformed, "filter ends after '('")
	}
	switch s[i] {
	case '&':
		return parseFilterList(s, i+1, FilterTypeAnd)
	case '|':
		return parseFilterList(s, i+1, FilterTypeOr)
	case '!':
		sub, next, err := parseFilterExpr(s, i+1)
		if err != nil {
			return Filter{}, 0, err
		}
		if next >= len(s) || s[next] != ')' {
			return Filter{}, 0, newDecodeError(KindMalformed,
				"expected ')' at offset %d in filter", next)
		}
		return Not(sub), next + 1, nil
	default:
		return parseFilterItem(s, i)
	}
}

// parseFilterList parses the subfilters of an and/or expression up to the
// closing parenthesis. An empty list is the RFC 4526 absolute true or false
// filter.
func parseFilterList(s string, i int, typ FilterType) (Filter, int, error) {
	f := Filter{Type: typ, Filters: []Filter{}}
	for {
		if i >= len(s) {
			return Filter{}, 0, newDecodeError(KindMalformed,
				"unterminated %s filter", typ)
		}
		if s[i] == ')' {
			return f, i + 1, nil
		}
		sub, next, err := parseFilterExpr(s, i)
		if err != nil {
			return Filter{}, 0, err
		}
		f.Filters = append(f.Filters, sub)
		i = next
	}
}

// parseFilterItem parses a simple, present, or substring item and its
// closing parenthesis.
func parseFilterItem(s string, i int) (Filter, int, error) {
	start := i
	for i < len(s) && s[i] != '=' && s[i] != '~' && s[i] != '<' && s[i] != '>' &&
		s[i] != '(' && s[i] != ')' && s[i] != ':' {
		i++
	}
	attr := s[start:i]
	if attr == "" {
		return Filter{}, 0, newDecodeError(KindMalformed,
			"filter item at offset %d has no attribute", start)
	}
	if i >= len(s) {
		return Filter{}, 0, newDecodeError(KindMalformed,
			"filter item %q has no comparison operator", attr)
	}

	var typ FilterType
	switch s[i] {
	case ':':
		return Filter{}, 0, newDecodeError(KindUnsupportedValue,
			"extensible match filters are not supported")
	case '=':
		typ = FilterTypeEquality
		i++
	case '~', '>', '<':
		op := s[i]
		if i+1 >= len(s) || s[i+1] != '=' {
			return Filter{}, 0, newDecodeError(KindMalformed,
				"invalid comparison operator %q at offset %d in filter", op, i)
		}
		switch op {
		case '~':
			typ = FilterTypeApprox
		case '>':
			typ = FilterTypeGreaterOrEqual
		case '<':
			typ = FilterTypeLessOrEqual
		}
		i += 2
	default:
		return Filter{}, 0, newDecodeError(KindMalformed,
			"unexpected character %q at offset %d in filter", s[i], i)
	}

	parts, stars, next, err := parseAssertionParts(s, i)
	if err != nil {
		return Filter{}, 0, err
	}
	if next >= len(s) || s[next] != ')' {
		return Filter{}, 0, newDecodeError(KindMalformed,
			"expected ')' at offset %d in filter", next)
	}
	next++

	if stars == 0 {
		return Filter{Type: typ, Attribute: attr, Value: parts[0]}, next, nil
	}
	if typ != FilterTypeEquality {
		return Filter{}, 0, newDecodeError(KindMalformed,
			"%s filter value for %q contains an unescaped asterisk", typ, attr)
	}
	if stars == 1 && parts[0] == "" && parts[1] == "" {
		return Present(attr), next, nil
	}

	f := Filter{Type: FilterTypeSubstrings, Attribute: attr}
	f.Initial = parts[0]
	f.Final = parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		if p != "" {
			f.Any = append(f.Any, p)
		}
	}
	return f, next, nil
}

// parseAssertionParts reads an assertion value up to the closing
// parenthesis, splitting on unescaped asterisks. It returns the parts, the
// number of unescaped asterisks, and the offset of the terminator.
func parseAssertionParts(s string, i int) ([]string, int, int, error) {
	parts := []string{}
	stars := 0
	var buf []byte
	for i < len(s) {
		c := s[i]
		switch c {
		case ')':
			parts = append(parts, string(buf))
			return parts, stars, i, nil
		case '(':
			return nil, 0, 0, newDecodeError(KindMalformed,
				"unescaped '(' at offset %d in filter value", i)
		case '*':
			parts = append(parts, string(buf))
			buf = buf[:0]
			stars++
			i++
		case '\\':
			if i+2 >= len(s) || !isHexDigit(s[i+1]) || !isHexDigit(s[i+2]) {
				return nil, 0, 0, newDecodeError(KindMalformed,
					"invalid hex escape at offset %d in filter value", i)
			}
			buf = append(buf, hexByte(s[i+1], s[i+2]))
			i += 3
		default:
			buf = append(buf, c)
			i++
		}
	}
	return nil, 0, 0, newDecodeError(KindMalformed, "filter value is unterminated")
}

// String renders the filter in RFC 4515 form. Values are escaped so the
// result always reparses to an equal filter.
func (f Filter) String() string {
	var b strings.Builder
	f.appendString(&b)
	return b.String()
}

func (f Filter) appendString(b *strings.Builder) {
	b.WriteByte('(')
	switch f.Type {
	case FilterTypeAnd, FilterTypeOr:
		if f.Type == FilterTypeAnd {
			b.WriteByte('&')
		} else {
			b.WriteByte('|')
		}
		for _, sub := range f.Filters {
			sub.appendString(b)
		}
	case FilterTypeNot:
		b.WriteByte('!')
		for _, sub := range f.Filters {
			sub.appendString(b)
		}
	case FilterTypePresent:
		b.WriteString(f.Attribute)
		b.WriteString("=*")
	case FilterTypeSubstrings:
		b.WriteString(f.Attribute)
		b.WriteByte('=')
		b.Write(appendFilterValue(nil, f.Initial))
		b.WriteByte('*')
		for _, p := range f.Any {
			b.Write(appendFilterValue(nil, p))
			b.WriteByte('*')
		}
		b.Write(appendFilterValue(nil, f.Final))
	default:
		b.WriteString(f.Attribute)
		switch f.Type {
		case FilterTypeApprox:
			b.WriteString("~=")
		case FilterTypeGreaterOrEqual:
			b.WriteString(">=")
		case FilterTypeLessOrEqual:
			b.WriteString("<=")
		default:
			b.WriteByte('=')
		}
		b.Write(appendFilterValue(nil, f.Value))
	}
	b.WriteByte(')')
}

// appendFilterValue escapes the RFC 4515 specials, control octets, and the
// escape character itself as hex pairs.
func appendFilterValue(dst []byte, value string) []byte {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '*' || c == '(' || c == ')' || c == '\\' || c < 0x20 || c == 0x7F {
			dst = append(dst, '\\', upperHex[c>>4], upperHex[c&0x0F])
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// Element returns the wire form of the filter. It fails with a UsageError
// when the tree is structurally invalid, such as a not filter without
// exactly one subfilter or a comparison without an attribute.
func (f Filter) Element() (ber.Element, error) {
	switch f.Type {
	case FilterTypeAnd, FilterTypeOr:
		children := make([]ber.Element, len(f.Filters))
		for i, sub := range f.Filters {
			el, err := sub.Element()
			if err != nil {
				return ber.Element{}, err
			}
			children[i] = el
		}
		return ber.NewSequence(ber.ContextType(byte(f.Type), true), children...), nil
	case FilterTypeNot:
		if len(f.Filters) != 1 {
			return ber.Element{}, NewUsageError(
				"not filter has %d subfilters, expected exactly one", len(f.Filters))
		}
		sub, err := f.Filters[0].Element()
		if err != nil {
			return ber.Element{}, err
		}
		return ber.NewSequence(ber.ContextType(byte(FilterTypeNot), true), sub), nil
	case FilterTypeEquality, FilterTypeGreaterOrEqual, FilterTypeLessOrEqual, FilterTypeApprox:
		if f.Attribute == "" {
			return ber.Element{}, NewUsageError("%s filter has no attribute", f.Type)
		}
		return ber.NewSequence(ber.ContextType(byte(f.Type), true),
			ber.NewString(ber.TypeOctetString, f.Attribute),
			ber.NewString(ber.TypeOctetString, f.Value),
		), nil
	case FilterTypePresent:
		if f.Attribute == "" {
			return ber.Element{}, NewUsageError("present filter has no attribute")
		}
		return ber.NewString(ber.ContextType(byte(FilterTypePresent), false), f.Attribute), nil
	case FilterTypeSubstrings:
		if f.Attribute == "" {
			return ber.Element{}, NewUsageError("substrings filter has no attribute")
		}
		var comps []ber.Element
		if f.Initial != "" {
			comps = append(comps, ber.NewString(ber.ContextType(subInitial, false), f.Initial))
		}
		for _, p := range f.Any {
			if p == "" {
				return ber.Element{}, NewUsageError(
					"substrings filter for %q has an empty interior component", f.Attribute)
			}
			comps = append(comps, ber.NewString(ber.ContextType(subAny, false), p))
		}
		if f.Final != "" {
			comps = append(comps, ber.NewString(ber.ContextType(subFinal, false), f.Final))
		}
		if len(comps) == 0 {
			return ber.Element{}, NewUsageError(
				"substrings filter for %q has no components", f.Attribute)
		}
		return ber.NewSequence(ber.ContextType(byte(FilterTypeSubstrings), true),
			ber.NewString(ber.TypeOctetString, f.Attribute),
			ber.NewSequence(ber.TypeSequence, comps...),
		), nil
	}
	return ber.Element{}, NewUsageError("invalid filter type %d", f.Type)
}

// Substring component tags within a substrings filter.
const (
	subInitial = 0
	subAny     = 1
	subFinal   = 2
)

// DecodeFilterElement parses the wire form of a search filter.
func DecodeFilterElement(el ber.Element) (Filter, error) {
	if el.Type.Class() != ber.ClassContext {
		return Filter{}, newDecodeError(KindUnexpectedTag,
			"filter element has %v, expected a context-specific type", el.Type)
	}
	tag := el.Type.TagNumber()
	switch FilterType(tag) {
	case FilterTypeAnd, FilterTypeOr:
		children, err := el.Sequence()
		if err != nil {
			return Filter{}, wrapBERError(err, "filter set")
		}
		f := Filter{Type: FilterType(tag), Filters: make([]Filter, len(children))}
		for i, c := range children {
			sub, err := DecodeFilterElement(c)
			if err != nil {
				return Filter{}, err
			}
			f.Filters[i] = sub
		}
		return f, nil
	case FilterTypeNot:
		children, err := el.Sequence()
		if err != nil {
			return Filter{}, wrapBERError(err, "not filter")
		}
		if len(children) != 1 {
			return Filter{}, newDecodeError(KindMalformed,
				"not filter has %d element(s), expected exactly one", len(children))
		}
		sub, err := DecodeFilterElement(children[0])
		if err != nil {
			return Filter{}, err
		}
		return Not(sub), nil
	case FilterTypeEquality, FilterTypeGreaterOrEqual, FilterTypeLessOrEqual, FilterTypeApprox:
		attr, value, err := decodeAssertion(el)
		if err != nil {
			return Filter{}, err
		}
		return Filter{Type: FilterType(tag), Attribute: attr, Value: value}, nil
	case FilterTypePresent:
		if el.Type.Constructed() {
			return Filter{}, newDecodeError(KindMalformed, "present filter is constructed")
		}
		return Present(el.StringValue()), nil
	case FilterTypeSubstrings:
		return decodeSubstrings(el)
	}
	return Filter{}, newDecodeError(KindUnsupportedValue,
		"filter tag %d is not supported", tag)
}

func decodeAssertion(el ber.Element) (string, string, error) {
	children, err := el.Sequence()
	if err != nil {
		return "", "", wrapBERError(err, "attribute value assertion")
	}
	if len(children) != 2 {
		return "", "", newDecodeError(KindMalformed,
			"attribute value assertion has %d element(s), expected an attribute and a value",
			len(children))
	}
	if err := ber.Expect(children[0], ber.TypeOctetString); err != nil {
		return "", "", wrapBERError(err, "assertion attribute")
	}
	if err := ber.Expect(children[1], ber.TypeOctetString); err != nil {
		return "", "", wrapBERError(err, "assertion value")
	}
	return children[0].StringValue(), children[1].StringValue(), nil
}

func decodeSubstrings(el ber.Element) (Filter, error) {
	children, err := el.Sequence()
	if err != nil {
		return Filter{}, wrapBERError(err, "substrings filter")
	}
	if len(children) != 2 {
		return Filter{}, newDecodeError(KindMalformed,
			"substrings filter has %d element(s), expected an attribute and a component list",
			len(children))
	}
	if err := ber.Expect(children[0], ber.TypeOctetString); err != nil {
		return Filter{}, wrapBERError(err, "substrings attribute")
	}
	comps, err := children[1].Sequence()
	if err != nil {
		return Filter{}, wrapBERError(err, "substrings component list")
	}
	if len(comps) == 0 {
		return Filter{}, newDecodeError(KindMalformed, "substrings filter has no components")
	}
	f := Filter{Type: FilterTypeSubstrings, Attribute: children[0].StringValue()}
	for i, c := range comps {
		if c.Type.Class() != ber.ClassContext || c.Type.Constructed() {
			return Filter{}, newDecodeError(KindUnexpectedTag,
				"substring component has %v, expected a primitive context-specific type", c.Type)
		}
		switch c.Type.TagNumber() {
		case subInitial:
			if i != 0 || f.Initial != "" {
				return Filter{}, newDecodeError(KindMalformed,
					"initial substring component out of place")
			}
			f.Initial = c.StringValue()
		case subAny:
			f.Any = append(f.Any, c.StringValue())
		case subFinal:
			if i != len(comps)-1 {
				return Filter{}, newDecodeError(KindMalformed,
					"final substring component out of place")
			}
			f.Final = c.StringValue()
		default:
			return Filter{}, newDecodeError(KindUnexpectedTag,
				"substring component tag %d is not valid", c.Type.TagNumber())
		}
	}
	return f, nil
}
