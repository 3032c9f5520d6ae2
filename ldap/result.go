// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"fmt"

	"github.com/dirkit/ldap-go-driver/ber"
)

// ResultCode is a protocol result code as carried in operation results and
// in result-bearing controls.
type ResultCode int32

const (
	ResultSuccess                      ResultCode = 0
	ResultOperationsError              ResultCode = 1
	ResultProtocolError                ResultCode = 2
	ResultTimeLimitExceeded            ResultCode = 3
	ResultSizeLimitExceeded            ResultCode = 4
	ResultCompareFalse                 ResultCode = 5
	ResultCompareTrue                  ResultCode = 6
	ResultAuthMethodNotSupported       ResultCode = 7
	ResultStrongerAuthRequired         ResultCode = 8
	ResultReferral                     ResultCode = 10
	ResultAdminLimitExceeded           ResultCode = 11
	ResultUnavailableCriticalExtension ResultCode = 12
	ResultConfidentialityRequired      ResultCode = 13
	ResultSaslBindInProgress           ResultCode = 14
	ResultNoSuchAttribute              ResultCode = 16
	ResultUndefinedAttributeType       ResultCode = 17
	ResultInappropriateMatching        ResultCode = 18
	ResultConstraintViolation          ResultCode = 19
	ResultAttributeOrValueExists       ResultCode = 20
	ResultInvalidAttributeSyntax       ResultCode = 21
	ResultNoSuchObject                 ResultCode = 32
	ResultAliasProblem                 ResultCode = 33
	ResultInvalidDNSyntax              ResultCode = 34
	ResultAliasDereferencingProblem    ResultCode = 36
	ResultInappropriateAuthentication  ResultCode = 48
	ResultInvalidCredentials           ResultCode = 49
	ResultInsufficientAccessRights     ResultCode = 50
	ResultBusy                         ResultCode = 51
	ResultUnavailable                  ResultCode = 52
	ResultUnwillingToPerform           ResultCode = 53
	ResultLoopDetect                   ResultCode = 54
	ResultNamingViolation              ResultCode = 64
	ResultObjectClassViolation         ResultCode = 65
	ResultNotAllowedOnNonLeaf          ResultCode = 66
	ResultNotAllowedOnRDN              ResultCode = 67
	ResultEntryAlreadyExists           ResultCode = 68
	ResultObjectClassModsProhibited    ResultCode = 69
	ResultAffectsMultipleDSAs          ResultCode = 71
	ResultOther                        ResultCode = 80
)

var resultCodeNames = map[ResultCode]string{
	ResultSuccess:                      "success",
	ResultOperationsError:              "operations error",
	ResultProtocolError:                "protocol error",
	ResultTimeLimitExceeded:            "time limit exceeded",
	ResultSizeLimitExceeded:            "size limit exceeded",
	ResultCompareFalse:                 "compare false",
	ResultCompareTrue:                  "compare true",
	ResultAuthMethodNotSupported:       "auth method not supported",
	ResultStrongerAuthRequired:         "stronger auth required",
	ResultReferral:                     "referral",
	ResultAdminLimitExceeded:           "admin limit exceeded",
	ResultUnavailableCriticalExtension: "unavailable critical extension",
	ResultConfidentialityRequired:      "confidentiality required",
	ResultSaslBindInProgress:           "SASL bind in progress",
	ResultNoSuchAttribute:              "no such attribute",
	ResultUndefinedAttributeType:       "undefined attribute type",
	ResultInappropriateMatching:        "inappropriate matching",
	ResultConstraintViolation:          "constraint violation",
	ResultAttributeOrValueExists:       "attribute or value exists",
	ResultInvalidAttributeSyntax:       "invalid attribute syntax",
	ResultNoSuchObject:                 "no such object",
	ResultAliasProblem:                 "alias problem",
	ResultInvalidDNSyntax:              "invalid DN syntax",
	ResultAliasDereferencingProblem:    "alias dereferencing problem",
	ResultInappropriateAuthentication:  "inappropriate authentication",
	ResultInvalidCredentials:           "invalid credentials",
	ResultInsufficientAccessRights:     "insufficient access rights",
	ResultBusy:                         "busy",
	ResultUnavailable:                  "unavailable",
	ResultUnwillingToPerform:           "unwilling to perform",
	ResultLoopDetect:                   "loop detect",
	ResultNamingViolation:              "naming violation",
	ResultObjectClassViolation:         "object class violation",
	ResultNotAllowedOnNonLeaf:          "not allowed on non-leaf",
	ResultNotAllowedOnRDN:              "not allowed on RDN",
	ResultEntryAlreadyExists:           "entry already exists",
	ResultObjectClassModsProhibited:    "object class mods prohibited",
	ResultAffectsMultipleDSAs:          "affects multiple DSAs",
	ResultOther:                        "other",
}

// String returns the protocol name of the result code.
func (rc ResultCode) String() string {
	if name, ok := resultCodeNames[rc]; ok {
		return name
	}
	return fmt.Sprintf("result code %d", int32(rc))
}

// Result is the common trailer of every operation response: a result code,
// optional matched DN and diagnostic text, optional referrals, and any
// response controls the server attached to the message.
type Result struct {
	Code       ResultCode
	MatchedDN  string
	Diagnostic string
	Referrals  []string
	Controls   []Control
}

// Err returns nil for success result codes and a *ResultError otherwise.
// Compare outcomes count as success so compare operations can report their
// boolean verdict through the code itself.
func (r *Result) Err() error {
	switch r.Code {
	case ResultSuccess, ResultCompareFalse, ResultCompareTrue:
		return nil
	}
	return &ResultError{
		Code:       r.Code,
		MatchedDN:  r.MatchedDN,
		Diagnostic: r.Diagnostic,
		Referrals:  append([]string(nil), r.Referrals...),
	}
}

// ResultError reports an operation that completed with a non-success result
// code.
type ResultError struct {
	Code       ResultCode
	MatchedDN  string
	Diagnostic string
	Referrals  []string
}

func (e *ResultError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("ldap: %s (%d): %s", e.Code, int32(e.Code), e.Diagnostic)
	}
	return fmt.Sprintf("ldap: %s (%d)", e.Code, int32(e.Code))
}

// referralTag is the context tag of the optional referral sequence inside a
// result trailer.
const referralTag = 3

// decodeResultElements parses the leading LDAPResult fields of an operation
// response: result code, matched DN, diagnostic message, and an optional
// referral sequence. It returns the parsed result and the elements that
// follow the trailer.
func decodeResultElements(children []ber.Element) (Result, []ber.Element, error) {
	if len(children) < 3 {
		return Result{}, nil, newDecodeError(KindMalformed,
			"operation result has %d element(s), expected at least a code, matched DN, and diagnostic", len(children))
	}
	if err := ber.Expect(children[0], ber.TypeEnumerated); err != nil {
		return Result{}, nil, wrapBERError(err, "result code")
	}
	code, err := children[0].Enumerated()
	if err != nil {
		return Result{}, nil, wrapBERError(err, "result code")
	}
	if err := ber.Expect(children[1], ber.TypeOctetString); err != nil {
		return Result{}, nil, wrapBERError(err, "matched DN")
	}
	if err := ber.Expect(children[2], ber.TypeOctetString); err != nil {
		return Result{}, nil, wrapBERError(err, "diagnostic message")
	}

	result := Result{
		Code:       ResultCode(code),
		MatchedDN:  children[1].StringValue(),
		Diagnostic: children[2].StringValue(),
	}
	rest := children[3:]
	if len(rest) > 0 && rest[0].Type == ber.ContextType(referralTag, true) {
		urls, err := rest[0].Sequence()
		if err != nil {
			return Result{}, nil, wrapBERError(err, "referral")
		}
		for _, u := range urls {
			if err := ber.Expect(u, ber.TypeOctetString); err != nil {
				return Result{}, nil, wrapBERError(err, "referral URL")
			}
			result.Referrals = append(result.Referrals, u.StringValue())
		}
		rest = rest[1:]
	}
	return result, rest, nil
}
