// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/ldap"
	"github.com/dirkit/ldap-go-driver/ldap/controls"
)

// sampleControls returns the control set the wire benchmarks exercise: a mix
// of request and response controls with primitive, nested, and recursive
// values.
func sampleControls() ([]ldap.Control, error) {
	count, err := controls.NewExaminedCountResponseControl(1234, true)
	if err != nil {
		return nil, err
	}
	uniqueness, err := controls.NewUniquenessResponseControl("uniqueness-check-1")
	if err != nil {
		return nil, err
	}

	identity := "dn:uid=proxy,ou=services,dc=example,dc=com"
	address := "10.8.0.2:54731"
	secure := false
	session := "session-19"
	inner := controls.IntermediateClientRequestValue{
		ClientIdentity: &identity,
	}
	intermediate := controls.NewIntermediateClientRequestControl(false,
		controls.IntermediateClientRequestValue{
			DownstreamRequest:       &inner,
			DownstreamClientAddress: &address,
			DownstreamClientSecure:  &secure,
			ClientSessionID:         &session,
		})

	return []ldap.Control{
		controls.NewPreReadRequestControl(false, "cn", "mail", "member"),
		controls.NewPostReadResponseControl(ldap.Entry{
			DN: "cn=alice,ou=people,dc=example,dc=com",
			Attributes: []ldap.Attribute{
				{Name: "cn", Values: []string{"alice"}},
				{Name: "mail", Values: []string{"alice@example.com", "a.liddell@example.com"}},
				{Name: "member", Values: []string{"cn=staff,ou=groups,dc=example,dc=com"}},
			},
		}),
		count,
		uniqueness,
		intermediate,
	}, nil
}

func BERControlEncoding(ctx context.Context, tm TimerManager, iters int) error {
	ctrls, err := sampleControls()
	if err != nil {
		return err
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		for _, c := range ctrls {
			if len(c.Envelope().Encode()) == 0 {
				return errors.New("encoding failed")
			}
		}
	}
	return nil
}

func BERControlDecoding(ctx context.Context, tm TimerManager, iters int) error {
	ctrls, err := sampleControls()
	if err != nil {
		return err
	}
	encoded := make([][]byte, len(ctrls))
	for i, c := range ctrls {
		encoded[i] = c.Envelope().Encode()
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		for _, raw := range encoded {
			env, err := ldap.DecodeEnvelope(raw)
			if err != nil {
				return err
			}
			typed, err := ldap.DecodeControl(env)
			if err != nil {
				return err
			}
			if _, generic := typed.(ldap.Envelope); generic {
				return errors.New("control did not specialize")
			}
		}
	}
	return nil
}

// sampleMessage returns a search result entry message carrying response
// controls, the shape that dominates real traffic.
func sampleMessage() (ldap.Message, error) {
	ctrls, err := sampleControls()
	if err != nil {
		return ldap.Message{}, err
	}
	entry := ldap.EntryElement(ldap.Entry{
		DN: "cn=bob,ou=people,dc=example,dc=com",
		Attributes: []ldap.Attribute{
			{Name: "cn", Values: []string{"bob"}},
			{Name: "objectClass", Values: []string{"person", "organizationalPerson"}},
			{Name: "mail", Values: []string{"bob@example.com"}},
		},
	})
	entry.Type = ber.ApplicationType(ldap.OpSearchResultEntry, true)
	return ldap.Message{ID: 7, Op: entry, Controls: ctrls}, nil
}

func BERMessageEncoding(ctx context.Context, tm TimerManager, iters int) error {
	msg, err := sampleMessage()
	if err != nil {
		return err
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		if len(msg.Encode()) == 0 {
			return errors.New("encoding failed")
		}
	}
	return nil
}

func BERMessageDecoding(ctx context.Context, tm TimerManager, iters int) error {
	msg, err := sampleMessage()
	if err != nil {
		return err
	}
	raw := msg.Encode()

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		out, err := ldap.DecodeMessage(raw)
		if err != nil {
			return err
		}
		if len(out.Controls) != len(msg.Controls) {
			return errors.New("decoding dropped controls")
		}
	}
	return nil
}

// makeJoinTree builds a joined entry tree of the given depth where every
// entry has fanout children.
func makeJoinTree(depth, fanout int) controls.JoinedEntry {
	entry := controls.JoinedEntry{
		DN: "ou=node,dc=example,dc=com",
		Attributes: []ldap.Attribute{
			{Name: "ou", Values: []string{"node"}},
		},
	}
	if depth == 0 {
		return entry
	}
	entry.NestedResults = make([]controls.JoinedEntry, fanout)
	for i := range entry.NestedResults {
		entry.NestedResults[i] = makeJoinTree(depth-1, fanout)
	}
	return entry
}

func BERJoinTreeDecoding(ctx context.Context, tm TimerManager, iters int) error {
	join := controls.NewJoinResultControl(ldap.ResultSuccess, "", "", nil,
		[]controls.JoinedEntry{makeJoinTree(5, 3)})
	raw := join.Envelope().Encode()

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		env, err := ldap.DecodeEnvelope(raw)
		if err != nil {
			return err
		}
		typed, err := ldap.DecodeControl(env)
		if err != nil {
			return err
		}
		if _, ok := typed.(*controls.JoinResultControl); !ok {
			return errors.New("join result did not specialize")
		}
	}
	return nil
}
