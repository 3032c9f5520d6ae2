// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package ldapprep implements an RFC 4518 style string preparation profile
// for directory string matching. Attribute values and distinguished name
// components are mapped, normalized (NFKC), and checked for prohibited code
// points before comparison, so that strings which differ only in
// representation compare as equal.
package ldapprep

import (
	"strings"

	"github.com/xdg/stringprep"
)

// transitionalMappings maps the RFC 4518 section 2.2 whitespace and control
// code points: tabulation, line breaks, and the Unicode space separators
// become SPACE, and the remaining control codes map to nothing.
var transitionalMappings = buildMappings()

func buildMappings() stringprep.Mapping {
	m := stringprep.Mapping{}
	for _, r := range []rune{
		0x0009, 0x000A, 0x000B, 0x000C, 0x000D, 0x0085,
		0x00A0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000,
	} {
		m[r] = []rune{0x0020}
	}
	for r := rune(0x2000); r <= 0x200A; r++ {
		m[r] = []rune{0x0020}
	}
	for r := rune(0x0000); r <= 0x001F; r++ {
		if _, ok := m[r]; !ok {
			m[r] = []rune{}
		}
	}
	for r := rune(0x007F); r <= 0x009F; r++ {
		if _, ok := m[r]; !ok {
			m[r] = []rune{}
		}
	}
	m[0x200B] = []rune{}
	m[0xFFFC] = []rune{}
	return m
}

// replacementSet prohibits U+FFFD. Invalid UTF-8 input decodes to the
// replacement character, so this also rejects malformed byte sequences.
var replacementSet = stringprep.Set{{0xFFFD, 0xFFFD}}

// caseExactProfile prepares strings for case-sensitive matching. The bidi
// check is disabled because RFC 4518 omits the RFC 3454 bidi step.
var caseExactProfile = stringprep.Profile{
	Mappings: []stringprep.Mapping{
		transitionalMappings,
		stringprep.TableB1,
	},
	Normalize: true,
	Prohibits: []stringprep.Set{
		stringprep.TableC3,
		stringprep.TableC4,
		stringprep.TableC5,
		stringprep.TableC8,
		replacementSet,
	},
	CheckBiDi: false,
}

// caseIgnoreProfile additionally folds case via the RFC 3454 B.2 table, for
// caseIgnoreMatch style comparisons.
var caseIgnoreProfile = stringprep.Profile{
	Mappings: []stringprep.Mapping{
		transitionalMappings,
		stringprep.TableB1,
		stringprep.TableB2,
	},
	Normalize: true,
	Prohibits: []stringprep.Set{
		stringprep.TableC3,
		stringprep.TableC4,
		stringprep.TableC5,
		stringprep.TableC8,
		replacementSet,
	},
	CheckBiDi: false,
}

// Prepare maps and normalizes s for case-sensitive matching, then applies
// the RFC 4518 section 2.6.1 insignificant space handling. It returns an
// error if s contains a prohibited code point.
func Prepare(s string) (string, error) {
	out, err := caseExactProfile.Prepare(s)
	if err != nil {
		return "", err
	}
	return collapseSpaces(out), nil
}

// Fold is Prepare with case folding, for case-insensitive matching.
func Fold(s string) (string, error) {
	out, err := caseIgnoreProfile.Prepare(s)
	if err != nil {
		return "", err
	}
	return collapseSpaces(out), nil
}

// Equal reports whether a and b match under the case-insensitive profile.
// Strings that fail preparation only compare equal byte for byte.
func Equal(a, b string) bool {
	fa, errA := Fold(a)
	fb, errB := Fold(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return fa == fb
}

// collapseSpaces trims leading and trailing spaces and collapses interior
// runs of spaces to a single space.
func collapseSpaces(s string) string {
	if !strings.Contains(s, "  ") {
		return strings.Trim(s, " ")
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
