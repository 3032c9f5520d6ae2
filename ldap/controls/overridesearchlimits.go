// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package controls

import (
	"sort"

	"github.com/buger/jsonparser"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/internal/jsonutil"
	"github.com/dirkit/ldap-go-driver/ldap"
)

// OverrideSearchLimitsRequestOID identifies the override search limits
// request control.
const OverrideSearchLimitsRequestOID = "1.3.6.1.4.1.30221.2.5.56"

const overrideSearchLimitsName = "Override Search Limits Request Control"

// OverrideSearchLimitsRequestControl asks the server to override named
// search limit properties for a single search. Properties are encoded in
// sorted name order so the wire form is deterministic:
//
//	SEQUENCE OF SEQUENCE { name OCTET STRING, value OCTET STRING }
type OverrideSearchLimitsRequestControl struct {
	critical bool
	names    []string
	values   map[string]string
}

// NewOverrideSearchLimitsRequestControl creates an override control from
// the given properties. At least one property is required, and names and
// values must be non-empty; violations fail before any bytes are produced.
func NewOverrideSearchLimitsRequestControl(critical bool, properties map[string]string) (*OverrideSearchLimitsRequestControl, error) {
	if len(properties) == 0 {
		return nil, ldap.NewUsageError("override search limits control requires at least one property")
	}
	names := make([]string, 0, len(properties))
	values := make(map[string]string, len(properties))
	for name, value := range properties {
		if name == "" {
			return nil, ldap.NewUsageError("override search limits property names must not be empty")
		}
		if value == "" {
			return nil, ldap.NewUsageError("override search limits property %q has an empty value", name)
		}
		names = append(names, name)
		values[name] = value
	}
	sort.Strings(names)
	return &OverrideSearchLimitsRequestControl{critical: critical, names: names, values: values}, nil
}

// OID returns OverrideSearchLimitsRequestOID.
func (c *OverrideSearchLimitsRequestControl) OID() string { return OverrideSearchLimitsRequestOID }

// Name returns the human-readable control name.
func (c *OverrideSearchLimitsRequestControl) Name() string { return overrideSearchLimitsName }

// Critical reports the control's criticality flag.
func (c *OverrideSearchLimitsRequestControl) Critical() bool { return c.critical }

// PropertyNames returns the property names in their encoded order.
func (c *OverrideSearchLimitsRequestControl) PropertyNames() []string {
	return append([]string(nil), c.names...)
}

// Property returns the value of the named property and whether it exists.
func (c *OverrideSearchLimitsRequestControl) Property(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Properties returns a copy of all properties.
func (c *OverrideSearchLimitsRequestControl) Properties() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Envelope re-encodes the control into its generic wire form.
func (c *OverrideSearchLimitsRequestControl) Envelope() ldap.Envelope {
	props := make([]ber.Element, len(c.names))
	for i, name := range c.names {
		props[i] = ber.NewSequence(ber.TypeSequence,
			ber.NewString(ber.TypeOctetString, name),
			ber.NewString(ber.TypeOctetString, c.values[name]),
		)
	}
	value := ber.NewSequence(ber.TypeSequence, props...).Encode()
	return mustEnvelope(OverrideSearchLimitsRequestOID, c.critical, value)
}

// AppendValueJSON renders the structured value object.
func (c *OverrideSearchLimitsRequestControl) AppendValueJSON(dst []byte) ([]byte, bool) {
	dst = append(dst, '{')
	dst = jsonutil.AppendKey(dst, "properties")
	dst = append(dst, '[')
	for i, name := range c.names {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '{')
		dst = jsonutil.AppendKey(dst, "name")
		dst = jsonutil.AppendString(dst, name)
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "value")
		dst = jsonutil.AppendString(dst, c.values[name])
		dst = append(dst, '}')
	}
	dst = append(dst, ']', '}')
	return dst, true
}

func decodeOverrideSearchLimits(env ldap.Envelope) (ldap.Control, error) {
	children, err := requireValueSequence(env, "override search limits")
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, decodeErr(ldap.KindMissingField, "override search limits control has no properties")
	}
	c := &OverrideSearchLimitsRequestControl{
		critical: env.Critical(),
		values:   make(map[string]string, len(children)),
	}
	for _, child := range children {
		if err := ber.Expect(child, ber.TypeSequence); err != nil {
			return nil, berErr(err, "override search limits property")
		}
		pair, err := child.Sequence()
		if err != nil {
			return nil, berErr(err, "override search limits property")
		}
		if len(pair) != 2 {
			return nil, decodeErr(ldap.KindMalformed,
				"override search limits property has %d element(s), expected a name and a value", len(pair))
		}
		if err := ber.Expect(pair[0], ber.TypeOctetString); err != nil {
			return nil, berErr(err, "override search limits property name")
		}
		if err := ber.Expect(pair[1], ber.TypeOctetString); err != nil {
			return nil, berErr(err, "override search limits property value")
		}
		name, value := pair[0].StringValue(), pair[1].StringValue()
		if name == "" {
			return nil, decodeErr(ldap.KindMissingField, "override search limits property has an empty name")
		}
		if value == "" {
			return nil, decodeErr(ldap.KindMissingField, "override search limits property %q has an empty value", name)
		}
		if _, dup := c.values[name]; dup {
			return nil, decodeErr(ldap.KindConflictingFields,
				"override search limits property %q appears more than once", name)
		}
		c.names = append(c.names, name)
		c.values[name] = value
	}
	return c, nil
}

func decodeOverrideSearchLimitsJSON(oid string, critical bool, value []byte, strict bool) (ldap.Control, error) {
	c := &OverrideSearchLimitsRequestControl{critical: critical, values: make(map[string]string)}
	propsSeen := false

	const name = "override search limits"
	err := walkValueObject(value, strict, name, map[string]func([]byte, jsonparser.ValueType) error{
		"properties": func(v []byte, dt jsonparser.ValueType) error {
			if dt != jsonparser.Array {
				return decodeErr(ldap.KindMalformed, "%s value field properties is a %s, not an array", name, dt)
			}
			propsSeen = true
			var itemErr error
			_, err := jsonparser.ArrayEach(v, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
				if itemErr != nil {
					return
				}
				if itemType != jsonparser.Object {
					itemErr = decodeErr(ldap.KindMalformed, "%s properties entries must be objects, found a %s", name, itemType)
					return
				}
				itemErr = c.addPropertyJSON(item, strict)
			})
			if itemErr != nil {
				return itemErr
			}
			if err != nil {
				return decodeErr(ldap.KindMalformed, "%s value field properties: %v", name, err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if !propsSeen {
		return nil, decodeErr(ldap.KindMissingField, "override search limits value is missing properties")
	}
	if len(c.names) == 0 {
		return nil, decodeErr(ldap.KindMissingField, "override search limits value has no properties")
	}
	return c, nil
}

func (c *OverrideSearchLimitsRequestControl) addPropertyJSON(item []byte, strict bool) error {
	var propName, propValue string

	const name = "override search limits property"
	err := walkValueObject(item, strict, name, map[string]func([]byte, jsonparser.ValueType) error{
		"name": func(v []byte, dt jsonparser.ValueType) error {
			s, err := parseJSONString(name, "name", v, dt)
			if err != nil {
				return err
			}
			propName = s
			return nil
		},
		"value": func(v []byte, dt jsonparser.ValueType) error {
			s, err := parseJSONString(name, "value", v, dt)
			if err != nil {
				return err
			}
			propValue = s
			return nil
		},
	})
	if err != nil {
		return err
	}
	if propName == "" {
		return decodeErr(ldap.KindMissingField, "override search limits property is missing its name")
	}
	if propValue == "" {
		return decodeErr(ldap.KindMissingField, "override search limits property %q is missing its value", propName)
	}
	if _, dup := c.values[propName]; dup {
		return decodeErr(ldap.KindConflictingFields,
			"override search limits property %q appears more than once", propName)
	}
	c.names = append(c.names, propName)
	c.values[propName] = propValue
	return nil
}

func init() {
	ldap.RegisterControl(OverrideSearchLimitsRequestOID,
		decodeOverrideSearchLimits, decodeOverrideSearchLimitsJSON)
}
