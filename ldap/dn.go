// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"strings"

	"github.com/dirkit/ldap-go-driver/internal/ldapprep"
)

// AVA is a single attribute type and value assertion within a relative
// distinguished name.
type AVA struct {
	Type  string
	Value string
}

// RDN is a relative distinguished name: one or more assertions joined with
// PLUS in the string form.
type RDN []AVA

// DN is an RFC 4514 distinguished name, most specific component first. The
// zero value is the empty DN (the root DSE).
type DN []RDN

// ParseDN parses the RFC 4514 string form of a distinguished name. The
// parser is lenient where servers commonly are: semicolons separate
// components like commas do, and unescaped spaces around separators are
// ignored. Values in hexstring form (leading SHARP) are hex decoded and kept
// as raw octets.
func ParseDN(s string) (DN, error) {
	var dn DN
	i := skipSpaces(s, 0)
	if i == len(s) {
		return dn, nil
	}
	rdn := RDN{}
	for {
		ava, next, err := parseAVA(s, i)
		if err != nil {
			return nil, err
		}
		rdn = append(rdn, ava)
		i = skipSpaces(s, next)
		if i == len(s) {
			dn = append(dn, rdn)
			return dn, nil
		}
		switch s[i] {
		case '+':
			i = skipSpaces(s, i+1)
		case ',', ';':
			dn = append(dn, rdn)
			rdn = RDN{}
			i = skipSpaces(s, i+1)
		default:
			return nil, newDecodeError(KindMalformed,
				"unexpected character %q at offset %d in DN", s[i], i)
		}
		if i == len(s) {
			return nil, newDecodeError(KindMalformed, "DN ends after a separator")
		}
	}
}

// parseAVA parses one attributeTypeAndValue starting at offset i and returns
// the offset of the first byte after the value.
func parseAVA(s string, i int) (AVA, int, error) {
	typ, i, err := parseAttributeType(s, i)
	if err != nil {
		return AVA{}, 0, err
	}
	i = skipSpaces(s, i)
	if i == len(s) || s[i] != '=' {
		return AVA{}, 0, newDecodeError(KindMalformed,
			"attribute type %q is not followed by '='", typ)
	}
	i = skipSpaces(s, i+1)
	if i < len(s) && s[i] == '#' {
		value, next, err := parseHexValue(s, i+1)
		if err != nil {
			return AVA{}, 0, err
		}
		return AVA{Type: typ, Value: value}, next, nil
	}
	value, next, err := parseStringValue(s, i)
	if err != nil {
		return AVA{}, 0, err
	}
	return AVA{Type: typ, Value: value}, next, nil
}

// parseAttributeType reads a descriptor (leading letter, then letters,
// digits, and hyphens) or a numeric OID.
func parseAttributeType(s string, i int) (string, int, error) {
	start := i
	if i == len(s) {
		return "", 0, newDecodeError(KindMalformed, "DN component has no attribute type")
	}
	c := s[i]
	switch {
	case isAlpha(c):
		for i < len(s) && (isAlpha(s[i]) || isDigit(s[i]) || s[i] == '-') {
			i++
		}
	case isDigit(c):
		digits := false
		for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
			if s[i] == '.' {
				if !digits {
					return "", 0, newDecodeError(KindMalformed,
						"invalid numeric OID in DN at offset %d", start)
				}
				digits = false
			} else {
				digits = true
			}
			i++
		}
		if !digits {
			return "", 0, newDecodeError(KindMalformed,
				"invalid numeric OID in DN at offset %d", start)
		}
	default:
		return "", 0, newDecodeError(KindMalformed,
			"invalid attribute type character %q at offset %d in DN", c, i)
	}
	return s[start:i], i, nil
}

// parseStringValue reads an attribute value up to an unescaped separator,
// resolving backslash pairs and hex escapes. Unescaped trailing spaces are
// dropped; escaped ones survive.
func parseStringValue(s string, i int) (string, int, error) {
	var buf []byte
	escapedEnd := 0
	for i < len(s) {
		c := s[i]
		if c == ',' || c == ';' || c == '+' {
			break
		}
		if c != '\\' {
			buf = append(buf, c)
			i++
			continue
		}
		if i+1 == len(s) {
			return "", 0, newDecodeError(KindMalformed, "DN value ends inside an escape")
		}
		e := s[i+1]
		switch {
		case strings.IndexByte(` "#+,;<>=\`, e) >= 0:
			buf = append(buf, e)
			i += 2
		case isHexDigit(e):
			if i+2 == len(s) || !isHexDigit(s[i+2]) {
				return "", 0, newDecodeError(KindMalformed,
					"invalid hex escape at offset %d in DN", i)
			}
			buf = append(buf, hexByte(e, s[i+2]))
			i += 3
		default:
			return "", 0, newDecodeError(KindMalformed,
				"invalid escape %q at offset %d in DN", e, i)
		}
		escapedEnd = len(buf)
	}
	end := len(buf)
	for end > escapedEnd && buf[end-1] == ' ' {
		end--
	}
	return string(buf[:end]), i, nil
}

// parseHexValue reads the hexstring value form. The decoded octets are the
// BER encoding of the attribute value and are kept undecoded.
func parseHexValue(s string, i int) (string, int, error) {
	start := i
	for i < len(s) && isHexDigit(s[i]) {
		i++
	}
	n := i - start
	if n == 0 || n%2 != 0 {
		return "", 0, newDecodeError(KindMalformed,
			"invalid hexstring value at offset %d in DN", start-1)
	}
	buf := make([]byte, n/2)
	for j := 0; j < n; j += 2 {
		buf[j/2] = hexByte(s[start+j], s[start+j+1])
	}
	return string(buf), i, nil
}

func skipSpaces(s string, i int) int {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}

func isAlpha(c byte) bool { return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || 'A' <= c && c <= 'F' || 'a' <= c && c <= 'f'
}

func hexByte(hi, lo byte) byte {
	return hexNibble(hi)<<4 | hexNibble(lo)
}

func hexNibble(c byte) byte {
	switch {
	case c <= '9':
		return c - '0'
	case c <= 'F':
		return c - 'A' + 10
	default:
		return c - 'a' + 10
	}
}

// String renders the DN in RFC 4514 form with minimal escaping.
func (d DN) String() string {
	var b strings.Builder
	for i, rdn := range d {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(rdn.String())
	}
	return b.String()
}

// Equal reports whether d and other name the same entry: same shape,
// attribute types compared case-insensitively, and values compared under
// the ldapprep case-ignore profile.
func (d DN) Equal(other DN) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if !d[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// String renders the RDN with its assertions joined by PLUS.
func (r RDN) String() string {
	var b strings.Builder
	for i, ava := range r {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteString(ava.String())
	}
	return b.String()
}

// Equal reports whether r and other hold the same assertions. Order is not
// significant in a multi-valued RDN.
func (r RDN) Equal(other RDN) bool {
	if len(r) != len(other) {
		return false
	}
	used := make([]bool, len(other))
outer:
	for _, ava := range r {
		for j := range other {
			if !used[j] && ava.Equal(other[j]) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// String renders the assertion with the value escaped per RFC 4514.
func (a AVA) String() string {
	buf := make([]byte, 0, len(a.Type)+1+len(a.Value))
	buf = append(buf, a.Type...)
	buf = append(buf, '=')
	buf = appendEscapedValue(buf, a.Value)
	return string(buf)
}

// Equal reports whether the assertions match under directory comparison
// rules.
func (a AVA) Equal(other AVA) bool {
	return strings.EqualFold(a.Type, other.Type) && ldapprep.Equal(a.Value, other.Value)
}

const upperHex = "0123456789ABCDEF"

// appendEscapedValue escapes value for use in the string form of a DN:
// backslashes for the RFC 4514 specials, hex pairs for control octets.
func appendEscapedValue(dst []byte, value string) []byte {
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == ' ' && (i == 0 || i == len(value)-1):
			dst = append(dst, '\\', c)
		case c == '#' && i == 0:
			dst = append(dst, '\\', c)
		case c == '"' || c == '+' || c == ',' || c == ';' || c == '<' || c == '>' || c == '\\':
			dst = append(dst, '\\', c)
		case c < 0x20 || c == 0x7F:
			dst = append(dst, '\\', upperHex[c>>4], upperHex[c&0x0F])
		default:
			dst = append(dst, c)
		}
	}
	return dst
}
