// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package controls

import (
	"github.com/buger/jsonparser"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/internal/jsonutil"
	"github.com/dirkit/ldap-go-driver/ldap"
)

// UniquenessResponseOID identifies the uniqueness response control.
const UniquenessResponseOID = "1.3.6.1.4.1.30221.2.5.53"

// Wire tags of the uniqueness response value:
//
//	SEQUENCE {
//	    uniquenessID               [0] OCTET STRING,
//	    conflictFound              [1] BOOLEAN OPTIONAL,
//	    preCommitValidationPassed  [2] BOOLEAN OPTIONAL,
//	    postCommitValidationPassed [3] BOOLEAN OPTIONAL,
//	    validationMessage          [4] OCTET STRING OPTIONAL }
//
// The three booleans are independently optional: an absent flag means that
// stage of validation was not attempted.
const (
	uniqTagID          = 0
	uniqTagConflict    = 1
	uniqTagPreCommit   = 2
	uniqTagPostCommit  = 3
	uniqTagValidateMsg = 4
)

const uniquenessResponseName = "Uniqueness Response Control"

// UniquenessResponseControl reports the outcome of a uniqueness request:
// whether a conflict was found and how the pre- and post-commit validation
// stages fared.
type UniquenessResponseControl struct {
	critical          bool
	uniquenessID      string
	conflictFound     *bool
	preCommitPassed   *bool
	postCommitPassed  *bool
	validationMessage *string
}

// UniquenessOption configures optional fields of a uniqueness response.
type UniquenessOption func(*UniquenessResponseControl)

// WithConflictFound records whether a uniqueness conflict was detected.
func WithConflictFound(v bool) UniquenessOption {
	return func(c *UniquenessResponseControl) { c.conflictFound = &v }
}

// WithPreCommitValidationPassed records the pre-commit validation outcome.
func WithPreCommitValidationPassed(v bool) UniquenessOption {
	return func(c *UniquenessResponseControl) { c.preCommitPassed = &v }
}

// WithPostCommitValidationPassed records the post-commit validation outcome.
func WithPostCommitValidationPassed(v bool) UniquenessOption {
	return func(c *UniquenessResponseControl) { c.postCommitPassed = &v }
}

// WithValidationMessage attaches a message describing the validation
// outcome.
func WithValidationMessage(msg string) UniquenessOption {
	return func(c *UniquenessResponseControl) { c.validationMessage = &msg }
}

// NewUniquenessResponseControl creates a uniqueness response for the given
// uniqueness ID, which correlates the response to a request and must not be
// empty.
func NewUniquenessResponseControl(uniquenessID string, opts ...UniquenessOption) (*UniquenessResponseControl, error) {
	if uniquenessID == "" {
		return nil, ldap.NewUsageError("uniqueness ID must not be empty")
	}
	c := &UniquenessResponseControl{uniquenessID: uniquenessID}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OID returns UniquenessResponseOID.
func (c *UniquenessResponseControl) OID() string { return UniquenessResponseOID }

// Name returns the human-readable control name.
func (c *UniquenessResponseControl) Name() string { return uniquenessResponseName }

// Critical reports the control's criticality flag.
func (c *UniquenessResponseControl) Critical() bool { return c.critical }

// UniquenessID returns the identifier correlating this response to its
// request.
func (c *UniquenessResponseControl) UniquenessID() string { return c.uniquenessID }

// ConflictFound returns the conflict outcome, or nil when the server did not
// report one.
func (c *UniquenessResponseControl) ConflictFound() *bool { return copyBool(c.conflictFound) }

// PreCommitValidationPassed returns the pre-commit validation outcome, or
// nil when that stage was not attempted.
func (c *UniquenessResponseControl) PreCommitValidationPassed() *bool {
	return copyBool(c.preCommitPassed)
}

// PostCommitValidationPassed returns the post-commit validation outcome, or
// nil when that stage was not attempted.
func (c *UniquenessResponseControl) PostCommitValidationPassed() *bool {
	return copyBool(c.postCommitPassed)
}

// ValidationMessage returns the server's validation message, or nil when
// none was supplied.
func (c *UniquenessResponseControl) ValidationMessage() *string {
	if c.validationMessage == nil {
		return nil
	}
	v := *c.validationMessage
	return &v
}

// Envelope re-encodes the control into its generic wire form.
func (c *UniquenessResponseControl) Envelope() ldap.Envelope {
	children := make([]ber.Element, 0, 5)
	children = append(children, ber.NewString(ber.ContextType(uniqTagID, false), c.uniquenessID))
	if c.conflictFound != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(uniqTagConflict, false), *c.conflictFound))
	}
	if c.preCommitPassed != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(uniqTagPreCommit, false), *c.preCommitPassed))
	}
	if c.postCommitPassed != nil {
		children = append(children, ber.NewBoolean(ber.ContextType(uniqTagPostCommit, false), *c.postCommitPassed))
	}
	if c.validationMessage != nil {
		children = append(children, ber.NewString(ber.ContextType(uniqTagValidateMsg, false), *c.validationMessage))
	}
	value := ber.NewSequence(ber.TypeSequence, children...).Encode()
	return mustEnvelope(UniquenessResponseOID, c.critical, value)
}

// AppendValueJSON renders the structured value object.
func (c *UniquenessResponseControl) AppendValueJSON(dst []byte) ([]byte, bool) {
	dst = append(dst, '{')
	dst = jsonutil.AppendKey(dst, "uniqueness-id")
	dst = jsonutil.AppendString(dst, c.uniquenessID)
	if c.conflictFound != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "conflict-found")
		dst = jsonutil.AppendBool(dst, *c.conflictFound)
	}
	if c.preCommitPassed != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "pre-commit-validation-passed")
		dst = jsonutil.AppendBool(dst, *c.preCommitPassed)
	}
	if c.postCommitPassed != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "post-commit-validation-passed")
		dst = jsonutil.AppendBool(dst, *c.postCommitPassed)
	}
	if c.validationMessage != nil {
		dst = append(dst, ',')
		dst = jsonutil.AppendKey(dst, "validation-message")
		dst = jsonutil.AppendString(dst, *c.validationMessage)
	}
	return append(dst, '}'), true
}

func decodeUniquenessResponse(env ldap.Envelope) (ldap.Control, error) {
	children, err := requireValueSequence(env, "uniqueness response")
	if err != nil {
		return nil, err
	}
	c := &UniquenessResponseControl{critical: env.Critical()}
	idSeen := false
	for _, child := range children {
		switch child.Type {
		case ber.ContextType(uniqTagID, false):
			c.uniquenessID = child.StringValue()
			idSeen = true
		case ber.ContextType(uniqTagConflict, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "conflict found flag")
			}
			c.conflictFound = &v
		case ber.ContextType(uniqTagPreCommit, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "pre-commit validation flag")
			}
			c.preCommitPassed = &v
		case ber.ContextType(uniqTagPostCommit, false):
			v, err := child.Boolean()
			if err != nil {
				return nil, berErr(err, "post-commit validation flag")
			}
			c.postCommitPassed = &v
		case ber.ContextType(uniqTagValidateMsg, false):
			s := child.StringValue()
			c.validationMessage = &s
		default:
			return nil, decodeErr(ldap.KindUnexpectedTag,
				"uniqueness response has an element with unexpected tag %s", child.Type)
		}
	}
	if !idSeen || c.uniquenessID == "" {
		return nil, decodeErr(ldap.KindMissingField, "uniqueness response is missing its uniqueness ID")
	}
	return c, nil
}

func decodeUniquenessResponseJSON(oid string, critical bool, value []byte, strict bool) (ldap.Control, error) {
	c := &UniquenessResponseControl{critical: critical}

	const name = "uniqueness response"
	err := walkValueObject(value, strict, name, map[string]func([]byte, jsonparser.ValueType) error{
		"uniqueness-id": func(v []byte, dt jsonparser.ValueType) error {
			s, err := parseJSONString(name, "uniqueness-id", v, dt)
			if err != nil {
				return err
			}
			c.uniquenessID = s
			return nil
		},
		"conflict-found": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "conflict-found", v, dt)
			if err != nil {
				return err
			}
			c.conflictFound = &b
			return nil
		},
		"pre-commit-validation-passed": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "pre-commit-validation-passed", v, dt)
			if err != nil {
				return err
			}
			c.preCommitPassed = &b
			return nil
		},
		"post-commit-validation-passed": func(v []byte, dt jsonparser.ValueType) error {
			b, err := parseJSONBool(name, "post-commit-validation-passed", v, dt)
			if err != nil {
				return err
			}
			c.postCommitPassed = &b
			return nil
		},
		"validation-message": func(v []byte, dt jsonparser.ValueType) error {
			s, err := parseJSONString(name, "validation-message", v, dt)
			if err != nil {
				return err
			}
			c.validationMessage = &s
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if c.uniquenessID == "" {
		return nil, decodeErr(ldap.KindMissingField, "uniqueness response value is missing uniqueness-id")
	}
	return c, nil
}

func init() {
	ldap.RegisterControl(UniquenessResponseOID, decodeUniquenessResponse, decodeUniquenessResponseJSON)
}
