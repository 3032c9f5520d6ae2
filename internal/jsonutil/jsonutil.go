// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package jsonutil provides append-style helpers for building JSON documents
// with a fixed field order.
package jsonutil

import (
	"encoding/json"
	"strconv"
)

// AppendString appends s to dst as a quoted, escaped JSON string.
func AppendString(dst []byte, s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		// Marshaling a string cannot fail; keep the document valid anyway.
		return append(dst, `""`...)
	}
	return append(dst, b...)
}

// AppendKey appends key to dst as a quoted object key followed by a colon.
// The key must not require escaping.
func AppendKey(dst []byte, key string) []byte {
	dst = append(dst, '"')
	dst = append(dst, key...)
	return append(dst, '"', ':')
}

// AppendBool appends b to dst as a JSON boolean.
func AppendBool(dst []byte, b bool) []byte {
	return strconv.AppendBool(dst, b)
}

// AppendInt appends i to dst as a JSON number.
func AppendInt(dst []byte, i int64) []byte {
	return strconv.AppendInt(dst, i, 10)
}
