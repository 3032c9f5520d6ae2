// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package controls

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/dirkit/ldap-go-driver/ldap"
)

// OIDs of the JSON-formatted request and response container controls.
const (
	JSONFormattedRequestOID  = "1.3.6.1.4.1.30221.2.5.64"
	JSONFormattedResponseOID = "1.3.6.1.4.1.30221.2.5.65"
)

const (
	jsonFormattedRequestName  = "JSON-Formatted Request Control"
	jsonFormattedResponseName = "JSON-Formatted Response Control"
)

// JSONFormattedControlDecodeBehavior governs how embedded control objects
// are decoded. Each switch is independent; the zero value skips every
// failing item silently and keeps containers out of containers. Behaviors
// are plain values scoped to a single decode call; the codec never retains
// them.
type JSONFormattedControlDecodeBehavior struct {
	// FailOnUnparsableObject fails the whole decode when an embedded object
	// cannot be parsed as a generic control. When false, the object is
	// skipped with a diagnostic.
	FailOnUnparsableObject bool

	// FailOnInvalidCriticalControl fails the whole decode when a critical
	// embedded control parses generically but is rejected by its registered
	// decoder. When false, the control is skipped with a diagnostic.
	FailOnInvalidCriticalControl bool

	// FailOnInvalidNonCriticalControl is the non-critical counterpart of
	// FailOnInvalidCriticalControl.
	FailOnInvalidNonCriticalControl bool

	// Strict rejects unrecognized fields at every JSON object level touched
	// during the decode, including the container's own value object.
	Strict bool

	// AllowEmbeddedJSONFormattedControl permits JSON-formatted controls to
	// appear inside the container. When false, an embedded container is
	// treated like a control whose specific decode failed.
	AllowEmbeddedJSONFormattedControl bool
}

// DefaultJSONFormattedControlDecodeBehavior returns the behavior most
// callers want: every failure is fatal, lenient field checking, and no
// containers inside containers.
func DefaultJSONFormattedControlDecodeBehavior() JSONFormattedControlDecodeBehavior {
	return JSONFormattedControlDecodeBehavior{
		FailOnUnparsableObject:          true,
		FailOnInvalidCriticalControl:    true,
		FailOnInvalidNonCriticalControl: true,
	}
}

// jsonFormattedControl is the state shared by the request and response
// containers: the raw value object and the embedded control objects in
// insertion order.
type jsonFormattedControl struct {
	critical bool
	value    []byte   // raw {"controls": [...]} object; nil for an empty container
	objects  [][]byte // raw embedded JSON control objects
}

// Critical reports the control's criticality flag.
func (c *jsonFormattedControl) Critical() bool { return c.critical }

// EmbeddedControlObjects returns copies of the embedded JSON control
// objects in their original order.
func (c *jsonFormattedControl) EmbeddedControlObjects() [][]byte {
	if len(c.objects) == 0 {
		return nil
	}
	out := make([][]byte, len(c.objects))
	for i, o := range c.objects {
		out[i] = append([]byte(nil), o...)
	}
	return out
}

// AppendValueJSON renders the raw value object, or reports false for an
// empty container so that the control is marshaled without a value at all.
func (c *jsonFormattedControl) AppendValueJSON(dst []byte) ([]byte, bool) {
	if c.value == nil {
		return dst, false
	}
	return append(dst, c.value...), true
}

// DecodeEmbeddedControls decodes the embedded control objects under the
// given behavior, returning the successfully decoded controls in their
// original order.
//
// The call is all-or-nothing: whenever the behavior chooses to fail, the
// error reflects the first fatal item and no partial result is returned.
// Suppressed failures contribute nothing to the result; each appends a
// human-readable message to diagnostics when a sink is supplied. The codec
// never retains the diagnostics slice beyond the call.
func (c *jsonFormattedControl) DecodeEmbeddedControls(behavior JSONFormattedControlDecodeBehavior, diagnostics *[]string) ([]ldap.Control, error) {
	if behavior.Strict && c.value != nil {
		if err := checkControlsValueStrict(c.value); err != nil {
			return nil, err
		}
	}

	var results []ldap.Control
	for i, obj := range c.objects {
		ctrl, err := ldap.UnmarshalControlJSON(obj, behavior.Strict)
		if err != nil {
			var invalid *ldap.InvalidControlError
			if errors.As(err, &invalid) {
				raise := behavior.FailOnInvalidNonCriticalControl
				if invalid.Critical {
					raise = behavior.FailOnInvalidCriticalControl
				}
				if raise {
					return nil, &ldap.DecodeError{
						Kind: ldap.KindPolicyRejected,
						Message: fmt.Sprintf(
							"embedded control %d (OID %s) could not be decoded: %v",
							i, invalid.OID, invalid.Err),
						Wrapped: err,
					}
				}
				record(diagnostics,
					"skipping embedded control %d (OID %s) that could not be decoded: %v",
					i, invalid.OID, invalid.Err)
				continue
			}
			if behavior.FailOnUnparsableObject {
				return nil, err
			}
			record(diagnostics,
				"skipping embedded control object %d that could not be parsed as a generic control: %v",
				i, err)
			continue
		}

		if !behavior.AllowEmbeddedJSONFormattedControl && isJSONFormatted(ctrl) {
			raise := behavior.FailOnInvalidNonCriticalControl
			if ctrl.Critical() {
				raise = behavior.FailOnInvalidCriticalControl
			}
			if raise {
				return nil, &ldap.DecodeError{
					Kind: ldap.KindPolicyRejected,
					Message: fmt.Sprintf(
						"embedded control %d is a JSON-formatted control, which the decode behavior does not allow", i),
				}
			}
			record(diagnostics,
				"skipping embedded control %d: JSON-formatted controls are not allowed inside a JSON-formatted control", i)
			continue
		}

		results = append(results, ctrl)
	}
	return results, nil
}

func record(diagnostics *[]string, format string, args ...interface{}) {
	if diagnostics == nil {
		return
	}
	*diagnostics = append(*diagnostics, fmt.Sprintf(format, args...))
}

func isJSONFormatted(c ldap.Control) bool {
	switch c.(type) {
	case *JSONFormattedRequestControl, *JSONFormattedResponseControl:
		return true
	}
	return false
}

// JSONFormattedRequestControl carries other request controls as JSON
// objects inside its own value.
type JSONFormattedRequestControl struct {
	jsonFormattedControl
}

// NewJSONFormattedRequestControl creates a container holding the JSON forms
// of the given controls, preserving their order.
func NewJSONFormattedRequestControl(critical bool, embedded ...ldap.Control) (*JSONFormattedRequestControl, error) {
	core, err := newJSONFormatted(critical, embedded)
	if err != nil {
		return nil, err
	}
	return &JSONFormattedRequestControl{jsonFormattedControl: core}, nil
}

// NewJSONFormattedRequestControlFromObjects creates a container from
// already-rendered JSON control objects, preserving their order. Each
// object must be valid JSON; its fields are not validated until decode.
func NewJSONFormattedRequestControlFromObjects(critical bool, objects ...[]byte) (*JSONFormattedRequestControl, error) {
	core, err := newJSONFormattedFromObjects(critical, objects)
	if err != nil {
		return nil, err
	}
	return &JSONFormattedRequestControl{jsonFormattedControl: core}, nil
}

// OID returns JSONFormattedRequestOID.
func (c *JSONFormattedRequestControl) OID() string { return JSONFormattedRequestOID }

// Name returns the human-readable control name.
func (c *JSONFormattedRequestControl) Name() string { return jsonFormattedRequestName }

// Envelope returns the generic wire form. The value holds the literal JSON
// text of the value object; an empty container has no value.
func (c *JSONFormattedRequestControl) Envelope() ldap.Envelope {
	return mustEnvelope(JSONFormattedRequestOID, c.critical, c.value)
}

// JSONFormattedResponseControl carries other response controls as JSON
// objects inside its own value.
type JSONFormattedResponseControl struct {
	jsonFormattedControl
}

// NewJSONFormattedResponseControl creates a container holding the JSON
// forms of the given controls, preserving their order.
func NewJSONFormattedResponseControl(critical bool, embedded ...ldap.Control) (*JSONFormattedResponseControl, error) {
	core, err := newJSONFormatted(critical, embedded)
	if err != nil {
		return nil, err
	}
	return &JSONFormattedResponseControl{jsonFormattedControl: core}, nil
}

// OID returns JSONFormattedResponseOID.
func (c *JSONFormattedResponseControl) OID() string { return JSONFormattedResponseOID }

// Name returns the human-readable control name.
func (c *JSONFormattedResponseControl) Name() string { return jsonFormattedResponseName }

// Envelope returns the generic wire form. The value holds the literal JSON
// text of the value object; an empty container has no value.
func (c *JSONFormattedResponseControl) Envelope() ldap.Envelope {
	return mustEnvelope(JSONFormattedResponseOID, c.critical, c.value)
}

func newJSONFormatted(critical bool, embedded []ldap.Control) (jsonFormattedControl, error) {
	objects := make([][]byte, 0, len(embedded))
	for _, ctrl := range embedded {
		obj, err := ldap.MarshalControlJSON(ctrl)
		if err != nil {
			return jsonFormattedControl{}, err
		}
		objects = append(objects, obj)
	}
	return jsonFormattedControl{
		critical: critical,
		value:    buildControlsValue(objects),
		objects:  objects,
	}, nil
}

func newJSONFormattedFromObjects(critical bool, objects [][]byte) (jsonFormattedControl, error) {
	copied := make([][]byte, 0, len(objects))
	for i, obj := range objects {
		_, dt, _, err := jsonparser.Get(obj)
		if err != nil || dt != jsonparser.Object {
			return jsonFormattedControl{}, ldap.NewUsageError(
				"embedded control object %d is not a JSON object", i)
		}
		copied = append(copied, append([]byte(nil), obj...))
	}
	return jsonFormattedControl{
		critical: critical,
		value:    buildControlsValue(copied),
		objects:  copied,
	}, nil
}

func buildControlsValue(objects [][]byte) []byte {
	if len(objects) == 0 {
		return nil
	}
	value := []byte(`{"controls":[`)
	for i, obj := range objects {
		if i > 0 {
			value = append(value, ',')
		}
		value = append(value, obj...)
	}
	return append(value, ']', '}')
}

// parseControlsValue extracts the embedded control objects from a value
// object of the form {"controls": [object, ...]}. The controls field is
// required; an empty array is valid and yields no objects. In strict mode
// any other field is an error.
func parseControlsValue(data []byte, strict bool, name string) (value []byte, objects [][]byte, err error) {
	controlsSeen := false
	walkErr := walkValueObject(data, strict, name, map[string]func([]byte, jsonparser.ValueType) error{
		"controls": func(v []byte, dt jsonparser.ValueType) error {
			if dt != jsonparser.Array {
				return decodeErr(ldap.KindMalformed, "%s controls field is a %s, not an array", name, dt)
			}
			controlsSeen = true
			var itemErr error
			_, err := jsonparser.ArrayEach(v, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
				if itemErr != nil {
					return
				}
				if itemType != jsonparser.Object {
					itemErr = decodeErr(ldap.KindMalformed,
						"%s embedded control %d is a %s, not an object", name, len(objects), itemType)
					return
				}
				objects = append(objects, append([]byte(nil), item...))
			})
			if itemErr != nil {
				return itemErr
			}
			if err != nil {
				return decodeErr(ldap.KindMalformed, "%s controls field: %v", name, err)
			}
			return nil
		},
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	if !controlsSeen {
		return nil, nil, decodeErr(ldap.KindMissingField, "%s value is missing the controls field", name)
	}
	return append([]byte(nil), data...), objects, nil
}

// checkControlsValueStrict re-examines a container value object that was
// decoded leniently, failing on any field other than controls.
func checkControlsValueStrict(data []byte) error {
	return jsonparser.ObjectEach(data, func(key, _ []byte, _ jsonparser.ValueType, _ int) error {
		if string(key) != "controls" {
			return decodeErr(ldap.KindUnknownField,
				"JSON-formatted control value has unrecognized field %q", string(key))
		}
		return nil
	})
}

func decodeJSONFormattedRequest(env ldap.Envelope) (ldap.Control, error) {
	core, err := decodeJSONFormattedValue(env, "JSON-formatted request")
	if err != nil {
		return nil, err
	}
	return &JSONFormattedRequestControl{jsonFormattedControl: core}, nil
}

func decodeJSONFormattedResponse(env ldap.Envelope) (ldap.Control, error) {
	core, err := decodeJSONFormattedValue(env, "JSON-formatted response")
	if err != nil {
		return nil, err
	}
	return &JSONFormattedResponseControl{jsonFormattedControl: core}, nil
}

// decodeJSONFormattedValue parses a container's binary value, which holds
// the UTF-8 text of the value object. A missing value is an empty
// container. Field strictness is deferred to DecodeEmbeddedControls, whose
// behavior carries the strict switch.
func decodeJSONFormattedValue(env ldap.Envelope, name string) (jsonFormattedControl, error) {
	raw, ok := env.Value()
	if !ok {
		return jsonFormattedControl{critical: env.Critical()}, nil
	}
	value, objects, err := parseControlsValue(raw, false, name)
	if err != nil {
		return jsonFormattedControl{}, err
	}
	return jsonFormattedControl{critical: env.Critical(), value: value, objects: objects}, nil
}

func decodeJSONFormattedRequestJSON(oid string, critical bool, value []byte, strict bool) (ldap.Control, error) {
	raw, objects, err := parseControlsValue(value, strict, "JSON-formatted request")
	if err != nil {
		return nil, err
	}
	return &JSONFormattedRequestControl{jsonFormattedControl{
		critical: critical, value: raw, objects: objects,
	}}, nil
}

func decodeJSONFormattedResponseJSON(oid string, critical bool, value []byte, strict bool) (ldap.Control, error) {
	raw, objects, err := parseControlsValue(value, strict, "JSON-formatted response")
	if err != nil {
		return nil, err
	}
	return &JSONFormattedResponseControl{jsonFormattedControl{
		critical: critical, value: raw, objects: objects,
	}}, nil
}

func init() {
	ldap.RegisterControl(JSONFormattedRequestOID, decodeJSONFormattedRequest, decodeJSONFormattedRequestJSON)
	ldap.RegisterControl(JSONFormattedResponseOID, decodeJSONFormattedResponse, decodeJSONFormattedResponseJSON)
}
