// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"encoding/base64"

	"github.com/buger/jsonparser"

	"github.com/dirkit/ldap-go-driver/internal/jsonutil"
)

// Reserved field names of the JSON control object representation.
const (
	jsonFieldOID         = "oid"
	jsonFieldControlName = "control-name"
	jsonFieldCriticality = "criticality"
	jsonFieldValueJSON   = "value-json"
	jsonFieldValueBase64 = "value-base64"
)

// ValueJSONMarshaler is implemented by controls whose values have a
// structured JSON form. MarshalControlJSON prefers it over the base64
// fallback.
type ValueJSONMarshaler interface {
	// AppendValueJSON appends the control's value as a JSON object to dst
	// and reports whether a value was written. When it reports false, dst
	// is returned unchanged and the control is rendered without a value.
	AppendValueJSON(dst []byte) ([]byte, bool)
}

// MarshalControlJSON renders any control as a JSON control object. Controls
// implementing ValueJSONMarshaler contribute a value-json field; all other
// controls with a value get a value-base64 field. Controls without a value
// produce neither.
//
// Field order is fixed: oid, control-name, criticality, then the value
// field, making the output byte-for-byte reproducible.
func MarshalControlJSON(c Control) ([]byte, error) {
	return AppendControlJSON(nil, c)
}

// AppendControlJSON appends the JSON control object form of c to dst.
func AppendControlJSON(dst []byte, c Control) ([]byte, error) {
	env := c.Envelope()
	if env.OID() == "" {
		return dst, NewUsageError("cannot marshal a control without an OID")
	}

	dst = append(dst, '{')
	dst = jsonutil.AppendKey(dst, jsonFieldOID)
	dst = jsonutil.AppendString(dst, env.OID())
	dst = append(dst, ',')
	dst = jsonutil.AppendKey(dst, jsonFieldControlName)
	dst = jsonutil.AppendString(dst, c.Name())
	dst = append(dst, ',')
	dst = jsonutil.AppendKey(dst, jsonFieldCriticality)
	dst = jsonutil.AppendBool(dst, c.Critical())

	wroteValue := false
	if m, ok := c.(ValueJSONMarshaler); ok {
		mark := len(dst)
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, jsonFieldValueJSON)
		appended, ok := m.AppendValueJSON(dst)
		if ok {
			dst = appended
			wroteValue = true
		} else {
			dst = dst[:mark]
		}
	}
	if !wroteValue {
		if value, ok := env.Value(); ok {
			dst = append(dst, ',')
			dst = jsonutil.AppendKey(dst, jsonFieldValueBase64)
			dst = jsonutil.AppendString(dst, base64.StdEncoding.EncodeToString(value))
		}
	}

	return append(dst, '}'), nil
}

// UnmarshalControlJSON parses a JSON control object into a control. Objects
// naming an OID with a registered strategy come back as typed controls;
// anything else comes back as a generic Envelope carrying the base64-decoded
// value.
//
// In strict mode, fields outside the reserved set fail the parse with
// KindUnknownField. A value-json object for an OID without a structured
// value schema fails with KindUnsupportedValue regardless of strictness,
// while value-base64 is honored for every OID. When the strategy registered
// for the OID rejects the value, the error is an *InvalidControlError
// wrapping the strategy's rejection.
func UnmarshalControlJSON(data []byte, strict bool) (Control, error) {
	head, err := parseControlObject(data, strict)
	if err != nil {
		return nil, err
	}
	return specializeControlObject(head, strict)
}

// controlObject holds the reserved fields of a parsed JSON control object
// before specialization.
type controlObject struct {
	oid       string
	critical  bool
	value     []byte // decoded value-base64; nil when absent
	valueJSON []byte // raw value-json object bytes; nil when absent
}

// parseControlObject extracts and validates the reserved fields of a JSON
// control object without consulting any registered control type.
func parseControlObject(data []byte, strict bool) (controlObject, error) {
	var (
		obj         controlObject
		oidSeen     bool
		nameSeen    bool
		critSeen    bool
		critical    bool
		valueSeen   bool
		valueJSSeen bool
	)

	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		switch string(key) {
		case jsonFieldOID:
			if oidSeen {
				return newDecodeError(KindMalformed, "control object has a duplicate oid field")
			}
			oidSeen = true
			if dataType != jsonparser.String {
				return newDecodeError(KindMalformed, "control object oid field is a %s, not a string", dataType)
			}
			oid, err := jsonparser.ParseString(value)
			if err != nil {
				return newDecodeError(KindMalformed, "control object oid field: %v", err)
			}
			obj.oid = oid
		case jsonFieldControlName:
			if nameSeen {
				return newDecodeError(KindMalformed, "control object has a duplicate control-name field")
			}
			nameSeen = true
			if dataType != jsonparser.String {
				return newDecodeError(KindMalformed, "control object control-name field is a %s, not a string", dataType)
			}
		case jsonFieldCriticality:
			if critSeen {
				return newDecodeError(KindMalformed, "control object has a duplicate criticality field")
			}
			critSeen = true
			if dataType != jsonparser.Boolean {
				return newDecodeError(KindMalformed, "control object criticality field is a %s, not a boolean", dataType)
			}
			b, err := jsonparser.ParseBoolean(value)
			if err != nil {
				return newDecodeError(KindMalformed, "control object criticality field: %v", err)
			}
			critical = b
		case jsonFieldValueBase64:
			if valueSeen {
				return newDecodeError(KindMalformed, "control object has a duplicate value-base64 field")
			}
			valueSeen = true
			if dataType != jsonparser.String {
				return newDecodeError(KindMalformed, "control object value-base64 field is a %s, not a string", dataType)
			}
			s, err := jsonparser.ParseString(value)
			if err != nil {
				return newDecodeError(KindMalformed, "control object value-base64 field: %v", err)
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return newDecodeError(KindMalformed, "control object value-base64 field is not valid base64: %v", err)
			}
			if decoded == nil {
				decoded = []byte{}
			}
			obj.value = decoded
		case jsonFieldValueJSON:
			if valueJSSeen {
				return newDecodeError(KindMalformed, "control object has a duplicate value-json field")
			}
			valueJSSeen = true
			if dataType != jsonparser.Object {
				return newDecodeError(KindMalformed, "control object value-json field is a %s, not an object", dataType)
			}
			obj.valueJSON = value
		default:
			if strict {
				return newDecodeError(KindUnknownField, "control object has unrecognized field %q", string(key))
			}
		}
		return nil
	})
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			return controlObject{}, de
		}
		return controlObject{}, &DecodeError{
			Kind:    KindMalformed,
			Message: "invalid control object: " + err.Error(),
			Wrapped: err,
		}
	}

	if !oidSeen {
		return controlObject{}, newDecodeError(KindMissingField, "control object is missing the oid field")
	}
	if obj.oid == "" {
		return controlObject{}, newDecodeError(KindMissingField, "control object oid field is empty")
	}
	if !critSeen {
		return controlObject{}, newDecodeError(KindMissingField, "control object is missing the criticality field")
	}
	if valueSeen && valueJSSeen {
		return controlObject{}, newDecodeError(KindConflictingFields,
			"control object has both value-base64 and value-json fields")
	}
	obj.critical = critical
	return obj, nil
}

// specializeControlObject turns a parsed control object into a typed control
// via the default registry. Strategy rejections are wrapped in
// *InvalidControlError so callers can attribute the failure to the control
// rather than to the surrounding document.
func specializeControlObject(head controlObject, strict bool) (Control, error) {
	if head.valueJSON != nil {
		dec, ok := defaultRegistry.lookupJSON(head.oid)
		if !ok {
			return nil, newDecodeError(KindUnsupportedValue,
				"control with OID %s does not support a value-json value", head.oid)
		}
		ctrl, err := dec(head.oid, head.critical, head.valueJSON, strict)
		if err != nil {
			return nil, &InvalidControlError{OID: head.oid, Critical: head.critical, Err: err}
		}
		return ctrl, nil
	}

	env := Envelope{oid: head.oid, critical: head.critical, value: head.value}
	ctrl, err := DecodeControl(env)
	if err != nil {
		return nil, &InvalidControlError{OID: head.oid, Critical: head.critical, Err: err}
	}
	return ctrl, nil
}
