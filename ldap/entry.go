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

// Attribute is a named attribute with zero or more values. Value order is
// preserved exactly as received or constructed.
type Attribute struct {
	Name   string
	Values []string
}

// Entry is a directory entry: a distinguished name plus its attributes.
// Entries are plain transport values; all fields are exported and callers
// own them outright.
type Entry struct {
	DN         string
	Attributes []Attribute
}

// Attribute returns the values of the named attribute and whether the
// attribute is present. Names are compared case-insensitively, as attribute
// descriptions are in the protocol.
func (e Entry) Attribute(name string) ([]string, bool) {
	for _, a := range e.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Values, true
		}
	}
	return nil, false
}

// AttributeValue returns the first value of the named attribute, or the
// empty string if the attribute is absent or empty.
func (e Entry) AttributeValue(name string) string {
	values, ok := e.Attribute(name)
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

// AttributeElement returns the wire form of a single attribute:
//
//	SEQUENCE { type OCTET STRING, vals SET OF OCTET STRING }
func AttributeElement(a Attribute) ber.Element {
	vals := make([]ber.Element, len(a.Values))
	for i, v := range a.Values {
		vals[i] = ber.NewString(ber.TypeOctetString, v)
	}
	return ber.NewSequence(ber.TypeSequence,
		ber.NewString(ber.TypeOctetString, a.Name),
		ber.NewSequence(ber.TypeSet, vals...),
	)
}

// DecodeAttribute parses a single attribute element.
func DecodeAttribute(el ber.Element) (Attribute, error) {
	if err := ber.Expect(el, ber.TypeSequence); err != nil {
		return Attribute{}, wrapBERError(err, "attribute")
	}
	children, err := el.Sequence()
	if err != nil {
		return Attribute{}, wrapBERError(err, "attribute")
	}
	if len(children) != 2 {
		return Attribute{}, newDecodeError(KindMalformed,
			"attribute has %d element(s), expected a name and a value set", len(children))
	}
	if err := ber.Expect(children[0], ber.TypeOctetString); err != nil {
		return Attribute{}, wrapBERError(err, "attribute name")
	}
	if err := ber.Expect(children[1], ber.TypeSet); err != nil {
		return Attribute{}, wrapBERError(err, "attribute value set")
	}
	valEls, err := children[1].Sequence()
	if err != nil {
		return Attribute{}, wrapBERError(err, "attribute value set")
	}
	attr := Attribute{Name: children[0].StringValue()}
	if len(valEls) > 0 {
		attr.Values = make([]string, len(valEls))
		for i, v := range valEls {
			if err := ber.Expect(v, ber.TypeOctetString); err != nil {
				return Attribute{}, wrapBERError(err, "attribute value")
			}
			attr.Values[i] = v.StringValue()
		}
	}
	return attr, nil
}

// EntryElement returns the wire form of an entry as used in control values:
//
//	SEQUENCE { objectName OCTET STRING, attributes SEQUENCE OF attribute }
func EntryElement(e Entry) ber.Element {
	attrs := make([]ber.Element, len(e.Attributes))
	for i, a := range e.Attributes {
		attrs[i] = AttributeElement(a)
	}
	return ber.NewSequence(ber.TypeSequence,
		ber.NewString(ber.TypeOctetString, e.DN),
		ber.NewSequence(ber.TypeSequence, attrs...),
	)
}

// AppendEntry appends the wire form of e to dst.
func AppendEntry(dst []byte, e Entry) []byte {
	return EntryElement(e).AppendTo(dst)
}

// DecodeEntry parses src as a single encoded entry, consuming the entire
// buffer.
func DecodeEntry(src []byte) (Entry, error) {
	el, err := ber.Decode(src)
	if err != nil {
		return Entry{}, wrapBERError(err, "invalid entry encoding")
	}
	return DecodeEntryElement(el)
}

// DecodeEntryElement parses an already-framed element as an entry. Any
// constructed tag is accepted in the outer position, so the same parse
// serves both control values and search result messages.
func DecodeEntryElement(el ber.Element) (Entry, error) {
	if !el.Type.Constructed() {
		return Entry{}, newDecodeError(KindMalformed, "entry is not a constructed element")
	}
	children, err := el.Sequence()
	if err != nil {
		return Entry{}, wrapBERError(err, "entry")
	}
	if len(children) != 2 {
		return Entry{}, newDecodeError(KindMalformed,
			"entry has %d element(s), expected a DN and an attribute list", len(children))
	}
	if err := ber.Expect(children[0], ber.TypeOctetString); err != nil {
		return Entry{}, wrapBERError(err, "entry DN")
	}
	if err := ber.Expect(children[1], ber.TypeSequence); err != nil {
		return Entry{}, wrapBERError(err, "entry attribute list")
	}
	attrEls, err := children[1].Sequence()
	if err != nil {
		return Entry{}, wrapBERError(err, "entry attribute list")
	}
	entry := Entry{DN: children[0].StringValue()}
	if len(attrEls) > 0 {
		entry.Attributes = make([]Attribute, len(attrEls))
		for i, a := range attrEls {
			attr, err := DecodeAttribute(a)
			if err != nil {
				return Entry{}, err
			}
			entry.Attributes[i] = attr
		}
	}
	return entry, nil
}
