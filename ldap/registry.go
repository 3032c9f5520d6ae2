// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"sync"
)

// ControlDecoder decodes the raw value of a control envelope into a typed
// control. Decoders must treat the envelope as read-only and must return an
// error rather than a partially-populated control.
type ControlDecoder func(env Envelope) (Control, error)

// ControlJSONDecoder decodes the structured value-json object of a control
// into a typed control. The value argument holds the raw bytes of the JSON
// object; strict requests rejection of unrecognized fields within it.
type ControlJSONDecoder func(oid string, critical bool, value []byte, strict bool) (Control, error)

type registryEntry struct {
	decode     ControlDecoder
	decodeJSON ControlJSONDecoder
}

// Registry maps control OIDs to decoding strategies. A nil strategy for a
// given form means the OID does not support that form; controls with no
// entry at all pass through decoding as generic envelopes.
//
// Registries are safe for concurrent use. Typical programs populate the
// default registry from init functions and never mutate it afterward.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register installs decoding strategies for oid, replacing any previous
// registration. decodeJSON may be nil for controls whose values have no
// structured JSON form.
func (r *Registry) Register(oid string, decode ControlDecoder, decodeJSON ControlJSONDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[oid] = registryEntry{decode: decode, decodeJSON: decodeJSON}
}

// DecodeControl specializes a generic envelope using the strategy registered
// for its OID. Envelopes with no registered strategy are returned unchanged;
// a strategy's rejection is returned verbatim, never converted into a
// generic result.
func (r *Registry) DecodeControl(env Envelope) (Control, error) {
	r.mu.RLock()
	entry, ok := r.entries[env.OID()]
	r.mu.RUnlock()
	if !ok || entry.decode == nil {
		return env, nil
	}
	return entry.decode(env)
}

func (r *Registry) lookupJSON(oid string) (ControlJSONDecoder, bool) {
	r.mu.RLock()
	entry, ok := r.entries[oid]
	r.mu.RUnlock()
	if !ok || entry.decodeJSON == nil {
		return nil, false
	}
	return entry.decodeJSON, true
}

// defaultRegistry holds the strategies registered by this module's control
// packages and by applications at startup.
var defaultRegistry = NewRegistry()

// RegisterControl installs decoding strategies for oid in the default
// registry. It is intended to be called from init functions.
func RegisterControl(oid string, decode ControlDecoder, decodeJSON ControlJSONDecoder) {
	defaultRegistry.Register(oid, decode, decodeJSON)
}

// DecodeControl specializes a generic envelope using the default registry.
func DecodeControl(env Envelope) (Control, error) {
	return defaultRegistry.DecodeControl(env)
}
