// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package ber contains functions that can be used to encode and decode the
// subset of ASN.1 BER (ITU-T X.690) used by the LDAP protocol. These
// functions are aimed at allowing low level manipulation of BER elements and
// are used to build the higher level control and message codecs.
//
// The Append* functions within this package append an encoded value to the
// given dst slice. If the slice has enough capacity, it will not grow. The
// Read* functions return the decoded value, the remainder of src, and an
// error describing why the bytes could not be read. Unlike the errors
// returned by higher layers, the errors here are sentinel values; callers
// that need to report protocol-level failures wrap them with their own
// context.
//
// Only definite length encodings and single-octet identifiers (tag numbers
// 0 through 30) are supported. LDAP never produces the high-tag-number or
// indefinite-length forms, so both are treated as malformed input.
package ber

// Type is the identifier octet of a BER element. It carries the tag class in
// the top two bits, the constructed flag in bit 6, and the tag number in the
// low five bits.
type Type byte

// Tag class constants (bits 8-7 of the identifier octet).
const (
	ClassUniversal   Type = 0x00
	ClassApplication Type = 0x40
	ClassContext     Type = 0x80
	ClassPrivate     Type = 0xC0
)

// TypeConstructed is the constructed flag (bit 6 of the identifier octet).
const TypeConstructed Type = 0x20

// Universal types used by LDAP.
const (
	TypeBoolean     Type = 0x01
	TypeInteger     Type = 0x02
	TypeOctetString Type = 0x04
	TypeNull        Type = 0x05
	TypeEnumerated  Type = 0x0A
	TypeSequence    Type = 0x30
	TypeSet         Type = 0x31
)

// highTagNumber is the reserved tag value introducing the multi-octet
// identifier form, which this package does not support.
const highTagNumber = 0x1F

// ContextType returns a context-specific identifier octet with the given tag
// number. Tag numbers above 30 are not representable in a single octet and
// are truncated to their low five bits; LDAP stays far below that bound.
func ContextType(tag byte, constructed bool) Type {
	t := ClassContext | Type(tag&0x1F)
	if constructed {
		t |= TypeConstructed
	}
	return t
}

// ApplicationType returns an application-class identifier octet with the
// given tag number.
func ApplicationType(tag byte, constructed bool) Type {
	t := ClassApplication | Type(tag&0x1F)
	if constructed {
		t |= TypeConstructed
	}
	return t
}

// Class returns the tag class bits of t.
func (t Type) Class() Type { return t & 0xC0 }

// Constructed returns true if the constructed flag is set.
func (t Type) Constructed() bool { return t&TypeConstructed != 0 }

// TagNumber returns the tag number encoded in the low five bits.
func (t Type) TagNumber() byte { return byte(t & 0x1F) }

// String returns the name of universal types and a hex rendering of
// everything else.
func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeOctetString:
		return "OCTET STRING"
	case TypeNull:
		return "NULL"
	case TypeEnumerated:
		return "ENUMERATED"
	case TypeSequence:
		return "SEQUENCE"
	case TypeSet:
		return "SET"
	}
	const hextable = "0123456789abcdef"
	buf := []byte{'0', 'x', hextable[t>>4], hextable[t&0x0F]}
	switch t.Class() {
	case ClassContext:
		return "context-specific type " + string(buf)
	case ClassApplication:
		return "application type " + string(buf)
	case ClassPrivate:
		return "private type " + string(buf)
	}
	return "universal type " + string(buf)
}

// AppendHeader appends the identifier octet for t and the definite length to
// dst and returns the extended buffer.
func AppendHeader(dst []byte, t Type, length int) []byte {
	dst = append(dst, byte(t))
	return AppendLength(dst, length)
}

// AppendLength appends a definite BER length to dst and returns the extended
// buffer. Lengths up to 127 use the short form; larger lengths use the
// minimal long form.
func AppendLength(dst []byte, length int) []byte {
	if length <= 0x7F {
		return append(dst, byte(length))
	}
	switch {
	case length <= 0xFF:
		return append(dst, 0x81, byte(length))
	case length <= 0xFFFF:
		return append(dst, 0x82, byte(length>>8), byte(length))
	case length <= 0xFFFFFF:
		return append(dst, 0x83, byte(length>>16), byte(length>>8), byte(length))
	default:
		return append(dst, 0x84, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	}
}

// ReadHeader reads an identifier octet and a definite length from src. It
// returns the element type, the content length, the remainder of src after
// the header, and an error if the header is truncated or the length is not a
// supported definite form.
func ReadHeader(src []byte) (Type, int, []byte, error) {
	if len(src) < 1 {
		return 0, 0, src, ErrTruncated
	}
	t := Type(src[0])
	if t.TagNumber() == highTagNumber {
		return 0, 0, src, ErrInvalidType
	}
	length, rest, err := ReadLength(src[1:])
	if err != nil {
		return 0, 0, src, err
	}
	return t, length, rest, nil
}

// ReadLength reads a definite BER length from src and returns it along with
// the remainder of src. The indefinite form and long forms longer than four
// octets are rejected; messages of that size never survive the transport's
// size limit.
func ReadLength(src []byte) (int, []byte, error) {
	if len(src) < 1 {
		return 0, src, ErrTruncated
	}
	first := src[0]
	if first&0x80 == 0 {
		return int(first), src[1:], nil
	}
	numOctets := int(first & 0x7F)
	if numOctets == 0 {
		return 0, src, ErrIndefiniteLength
	}
	if numOctets > 4 {
		return 0, src, ErrInvalidLength
	}
	if len(src) < 1+numOctets {
		return 0, src, ErrTruncated
	}
	length := 0
	for _, b := range src[1 : 1+numOctets] {
		length = length<<8 | int(b)
	}
	if length < 0 {
		return 0, src, ErrInvalidLength
	}
	return length, src[1+numOctets:], nil
}

// AppendBoolean appends a boolean element with identifier t to dst and
// returns the extended buffer. True is encoded as 0xFF per X.690 11.1.
func AppendBoolean(dst []byte, t Type, value bool) []byte {
	dst = AppendHeader(dst, t, 1)
	if value {
		return append(dst, 0xFF)
	}
	return append(dst, 0x00)
}

// AppendInteger appends an integer element with identifier t to dst and
// returns the extended buffer. The content octets use the minimal
// two's-complement big-endian form.
func AppendInteger(dst []byte, t Type, value int64) []byte {
	n := intLength(value)
	dst = AppendHeader(dst, t, n)
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(value>>uint(8*i)))
	}
	return dst
}

// AppendOctetString appends an octet string element with identifier t to dst
// and returns the extended buffer.
func AppendOctetString(dst []byte, t Type, value []byte) []byte {
	dst = AppendHeader(dst, t, len(value))
	return append(dst, value...)
}

// AppendString appends a string as an octet string element with identifier t
// to dst and returns the extended buffer.
func AppendString(dst []byte, t Type, value string) []byte {
	dst = AppendHeader(dst, t, len(value))
	return append(dst, value...)
}

// AppendNull appends an empty element with identifier t to dst and returns
// the extended buffer.
func AppendNull(dst []byte, t Type) []byte {
	return AppendHeader(dst, t, 0)
}

// intLength returns the number of content octets needed to encode value in
// two's-complement form.
func intLength(value int64) int {
	n := 1
	for value > 0x7F {
		n++
		value >>= 8
	}
	for value < -0x80 {
		n++
		value >>= 8
	}
	return n
}

// decodeInt returns the two's-complement integer encoded in content,
// enforcing the minimal encoding rule and the supplied maximum width.
func decodeInt(content []byte, maxOctets int) (int64, error) {
	if len(content) == 0 {
		return 0, ErrInvalidInteger
	}
	if len(content) > maxOctets {
		return 0, ErrIntegerTooLarge
	}
	if len(content) > 1 {
		if (content[0] == 0x00 && content[1]&0x80 == 0) ||
			(content[0] == 0xFF && content[1]&0x80 != 0) {
			return 0, ErrNonMinimalInteger
		}
	}
	value := int64(int8(content[0]))
	for _, b := range content[1:] {
		value = value<<8 | int64(b)
	}
	return value, nil
}
