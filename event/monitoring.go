// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package event contains the callback structs a client application can
// register to observe the messages a connection exchanges.
package event

import "context"

// MessageSentEvent represents an event generated when a request message is
// written to the server.
type MessageSentEvent struct {
	Message       []byte
	OperationName string
	MessageID     int32
	ConnectionID  string
}

// MessageFinishedEvent represents a generic message exchange finishing.
type MessageFinishedEvent struct {
	DurationNanos int64
	OperationName string
	MessageID     int32
	ConnectionID  string
}

// MessageReceivedEvent represents an event generated when an exchange
// completes with a server response. Operations that stream multiple
// responses generate one event per response message.
type MessageReceivedEvent struct {
	MessageFinishedEvent
	Reply []byte
}

// MessageFailedEvent represents an event generated when an exchange fails
// before a response could be decoded.
type MessageFailedEvent struct {
	MessageFinishedEvent
	Failure string
}

// MessageMonitor represents a monitor that is triggered for different events.
type MessageMonitor struct {
	Sent     func(context.Context, *MessageSentEvent)
	Received func(context.Context, *MessageReceivedEvent)
	Failed   func(context.Context, *MessageFailedEvent)
}
