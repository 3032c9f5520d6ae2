// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dirkit/ldap-go-driver/ldap"
	"github.com/dirkit/ldap-go-driver/ldap/controls"
)

// sampleJSONControls extends the wire sample with controls that carry
// structured JSON values, so both the value-json and value-base64 paths are
// measured.
func sampleJSONControls() ([]ldap.Control, error) {
	out, err := sampleControls()
	if err != nil {
		return nil, err
	}
	request, err := controls.NewMatchingEntryCountRequestControl(false)
	if err != nil {
		return nil, err
	}
	limits, err := controls.NewOverrideSearchLimitsRequestControl(false, map[string]string{
		"sizeLimit": "5000",
		"timeLimit": "120",
	})
	if err != nil {
		return nil, err
	}
	return append(out, request, limits), nil
}

func JSONControlEncoding(ctx context.Context, tm TimerManager, iters int) error {
	ctrls, err := sampleJSONControls()
	if err != nil {
		return err
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		for _, c := range ctrls {
			data, err := ldap.MarshalControlJSON(c)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("encoding failed")
			}
		}
	}
	return nil
}

func jsonControlDecoding(ctx context.Context, tm TimerManager, iters int, strict bool) error {
	ctrls, err := sampleJSONControls()
	if err != nil {
		return err
	}
	encoded := make([][]byte, len(ctrls))
	for i, c := range ctrls {
		if encoded[i], err = ldap.MarshalControlJSON(c); err != nil {
			return err
		}
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		for _, raw := range encoded {
			typed, err := ldap.UnmarshalControlJSON(raw, strict)
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

func JSONControlDecoding(ctx context.Context, tm TimerManager, iters int) error {
	return jsonControlDecoding(ctx, tm, iters, false)
}

func JSONControlDecodingStrict(ctx context.Context, tm TimerManager, iters int) error {
	return jsonControlDecoding(ctx, tm, iters, true)
}

// makeWideContainer returns the JSON form of a container control embedding
// width copies of a small structured control.
func makeWideContainer(width int) ([]byte, error) {
	embedded := make([]ldap.Control, width)
	for i := range embedded {
		c, err := controls.NewMatchingEntryCountRequestControl(false)
		if err != nil {
			return nil, err
		}
		embedded[i] = c
	}
	container, err := controls.NewJSONFormattedRequestControl(false, embedded...)
	if err != nil {
		return nil, err
	}
	return ldap.MarshalControlJSON(container)
}

// makeDeepContainer returns the JSON form of containers nested depth levels
// deep, with a single structured control at the bottom.
func makeDeepContainer(depth int) ([]byte, error) {
	inner, err := controls.NewMatchingEntryCountRequestControl(false)
	if err != nil {
		return nil, err
	}
	current := ldap.Control(inner)
	for i := 0; i < depth; i++ {
		container, err := controls.NewJSONFormattedRequestControl(false, current)
		if err != nil {
			return nil, err
		}
		current = container
	}
	return ldap.MarshalControlJSON(current)
}

func JSONContainerWideDecoding(ctx context.Context, tm TimerManager, iters int) error {
	raw, err := makeWideContainer(64)
	if err != nil {
		return err
	}
	behavior := controls.DefaultJSONFormattedControlDecodeBehavior()

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		typed, err := ldap.UnmarshalControlJSON(raw, false)
		if err != nil {
			return err
		}
		container, ok := typed.(*controls.JSONFormattedRequestControl)
		if !ok {
			return errors.New("container did not specialize")
		}
		embedded, err := container.DecodeEmbeddedControls(behavior, nil)
		if err != nil {
			return err
		}
		if len(embedded) != 64 {
			return errors.New("container dropped embedded controls")
		}
	}
	return nil
}

func JSONContainerDeepDecoding(ctx context.Context, tm TimerManager, iters int) error {
	const depth = 32

	raw, err := makeDeepContainer(depth)
	if err != nil {
		return err
	}
	behavior := controls.DefaultJSONFormattedControlDecodeBehavior()
	behavior.AllowEmbeddedJSONFormattedControl = true

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		typed, err := ldap.UnmarshalControlJSON(raw, false)
		if err != nil {
			return err
		}
		for level := 0; level < depth; level++ {
			container, ok := typed.(*controls.JSONFormattedRequestControl)
			if !ok {
				return errors.Errorf("level %d is not a container", level)
			}
			embedded, err := container.DecodeEmbeddedControls(behavior, nil)
			if err != nil {
				return err
			}
			if len(embedded) != 1 {
				return errors.Errorf("level %d has %d embedded controls", level, len(embedded))
			}
			typed = embedded[0]
		}
		if _, ok := typed.(*controls.MatchingEntryCountRequestControl); !ok {
			return errors.New("innermost control did not specialize")
		}
	}
	return nil
}
