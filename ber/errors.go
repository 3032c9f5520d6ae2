// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ber

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when src ends before the declared length.
	ErrTruncated = errors.New("ber: truncated input")

	// ErrInvalidType is returned for identifier octets using the
	// unsupported high-tag-number form.
	ErrInvalidType = errors.New("ber: unsupported identifier octet")

	// ErrInvalidLength is returned for length octets that cannot describe
	// a definite length within the supported range.
	ErrInvalidLength = errors.New("ber: invalid length encoding")

	// ErrIndefiniteLength is returned when the indefinite length form is
	// encountered.
	ErrIndefiniteLength = errors.New("ber: indefinite length not supported")

	// ErrInvalidInteger is returned for integer elements with no content
	// octets.
	ErrInvalidInteger = errors.New("ber: integer has no content octets")

	// ErrNonMinimalInteger is returned when an integer's content octets
	// are not the minimal two's-complement form.
	ErrNonMinimalInteger = errors.New("ber: non-minimal integer encoding")

	// ErrIntegerTooLarge is returned when an integer's content octets
	// overflow the requested width.
	ErrIntegerTooLarge = errors.New("ber: integer overflows target width")

	// ErrInvalidBoolean is returned for boolean elements whose content is
	// not exactly one octet.
	ErrInvalidBoolean = errors.New("ber: boolean content must be one octet")

	// ErrTrailingData is returned by Decode when bytes remain after the
	// outermost element.
	ErrTrailingData = errors.New("ber: trailing bytes after element")

	// ErrNotConstructed is returned when sequence contents are requested
	// from a primitive element.
	ErrNotConstructed = errors.New("ber: element is not constructed")

	// ErrUnexpectedTag is returned, possibly wrapped in a TagError, when
	// an element's identifier does not match what the caller expects.
	ErrUnexpectedTag = errors.New("ber: unexpected tag")
)

// TagError reports an element whose identifier octet does not match the one
// a field requires. It matches ErrUnexpectedTag under errors.Is.
type TagError struct {
	Expected Type
	Actual   Type
}

func (e *TagError) Error() string {
	return fmt.Sprintf("ber: expected %s, found %s", e.Expected, e.Actual)
}

// Is lets TagError match ErrUnexpectedTag.
func (e *TagError) Is(target error) bool { return target == ErrUnexpectedTag }
