// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/event"
	"github.com/dirkit/ldap-go-driver/ldap"
	"github.com/dirkit/ldap-go-driver/ldap/controls"
)

// scriptDialer hands the client one end of an in-memory pipe and runs the
// script against the other end on its own goroutine. The script plays the
// server; it must use assert rather than require so a failure does not kill
// a goroutine the test is not running on.
type scriptDialer struct {
	t      *testing.T
	script func(t *testing.T, server net.Conn)
	done   chan struct{}
}

func newScriptDialer(t *testing.T, script func(t *testing.T, server net.Conn)) *scriptDialer {
	return &scriptDialer{t: t, script: script, done: make(chan struct{})}
}

func (d *scriptDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer close(d.done)
		defer server.Close()
		d.script(d.t, server)
	}()
	return client, nil
}

// dialScripted opens a connection backed by the scripted server and arranges
// for cleanup to close the connection and join the script goroutine.
func dialScripted(t *testing.T, script func(t *testing.T, server net.Conn), opts ...ldap.Option) *ldap.Conn {
	t.Helper()

	dialer := newScriptDialer(t, script)
	opts = append(opts, ldap.ContextDialerOpt(dialer))
	conn, err := ldap.Dial(context.Background(), "ldap://scripted.example.com", opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		select {
		case <-dialer.done:
		case <-time.After(5 * time.Second):
			t.Error("scripted server did not exit")
		}
	})
	return conn
}

func readRequest(t *testing.T, server net.Conn) (ldap.Message, bool) {
	msg, err := ldap.ReadMessage(server, 0)
	if !assert.NoError(t, err, "reading request") {
		return ldap.Message{}, false
	}
	return msg, true
}

func writeMessage(t *testing.T, server net.Conn, msg ldap.Message) {
	_, err := server.Write(msg.Encode())
	assert.NoError(t, err, "writing response")
}

// resultOp builds an operation element carrying the standard result trailer,
// optionally followed by extra elements such as a responseName.
func resultOp(op byte, code ldap.ResultCode, matchedDN, diagnostic string, extra ...ber.Element) ber.Element {
	children := append([]ber.Element{
		ber.NewInteger(ber.TypeEnumerated, int64(code)),
		ber.NewString(ber.TypeOctetString, matchedDN),
		ber.NewString(ber.TypeOctetString, diagnostic),
	}, extra...)
	return ber.NewSequence(ber.ApplicationType(op, true), children...)
}

// entryOp re-tags an encoded entry as a search result entry message.
func entryOp(e ldap.Entry) ber.Element {
	el := ldap.EntryElement(e)
	el.Type = ber.ApplicationType(ldap.OpSearchResultEntry, true)
	return el
}

func TestConnSimpleBind(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		assert.Equal(t, int32(1), req.ID)
		assert.Equal(t, ber.ApplicationType(ldap.OpBindRequest, true), req.Op.Type)

		children, err := req.Op.Sequence()
		if assert.NoError(t, err) && assert.Len(t, children, 3) {
			version, err := children[0].Int64()
			assert.NoError(t, err)
			assert.Equal(t, int64(3), version)
			assert.Equal(t, "cn=admin,dc=example,dc=com", children[1].StringValue())
			assert.Equal(t, ber.ContextType(0, false), children[2].Type)
			// SASLprep maps the soft hyphen in the password to nothing.
			assert.Equal(t, "hunter2", children[2].StringValue())
		}

		writeMessage(t, server, ldap.Message{
			ID: req.ID,
			Op: resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", ""),
		})
	})

	result, err := conn.SimpleBind(context.Background(), "cn=admin,dc=example,dc=com", "hun­ter2")
	require.NoError(t, err)
	require.Equal(t, ldap.ResultSuccess, result.Code)
	require.Empty(t, result.Controls)
}

func TestConnSimpleBindFailure(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: req.ID,
			Op: resultOp(ldap.OpBindResponse, ldap.ResultInvalidCredentials, "", "invalid password"),
		})
	})

	result, err := conn.SimpleBind(context.Background(), "cn=admin,dc=example,dc=com", "wrong")
	require.Error(t, err)

	var resErr *ldap.ResultError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, ldap.ResultInvalidCredentials, resErr.Code)
	require.Equal(t, "invalid password", resErr.Diagnostic)

	// The result is populated even though the bind failed.
	require.Equal(t, ldap.ResultInvalidCredentials, result.Code)
}

func TestConnSimpleBindPasswordPrep(t *testing.T) {
	t.Parallel()

	// A NUL byte is prohibited by SASLprep, so the bind fails before any
	// bytes reach the server.
	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		_, err := ldap.ReadMessage(server, 0)
		assert.Equal(t, io.EOF, err, "no request should reach the server")
	})

	_, err := conn.SimpleBind(context.Background(), "cn=admin,dc=example,dc=com", "bad\x00password")
	require.Error(t, err)

	var usageErr *ldap.UsageError
	require.ErrorAs(t, err, &usageErr)
	require.Contains(t, err.Error(), "SASLprepping")
}

func TestConnSearch(t *testing.T) {
	t.Parallel()

	countControl, err := controls.NewExaminedCountResponseControl(5, true)
	require.NoError(t, err)
	joinControl := controls.NewJoinResultControl(ldap.ResultSuccess, "", "", nil, []controls.JoinedEntry{{
		DN:         "cn=manager,dc=example,dc=com",
		Attributes: []ldap.Attribute{{Name: "cn", Values: []string{"manager"}}},
	}})
	unknownControl, err := ldap.NewEnvelope("1.2.3.4.5", false, []byte{0x05, 0x00})
	require.NoError(t, err)

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		assert.Equal(t, ber.ApplicationType(ldap.OpSearchRequest, true), req.Op.Type)

		children, err := req.Op.Sequence()
		if assert.NoError(t, err) && assert.Len(t, children, 8) {
			assert.Equal(t, "dc=example,dc=com", children[0].StringValue())

			scope, err := children[1].Enumerated()
			assert.NoError(t, err)
			assert.Equal(t, int32(ldap.ScopeWholeSubtree), scope)

			filter, err := ldap.DecodeFilterElement(children[6])
			assert.NoError(t, err)
			assert.Equal(t, "(objectClass=person)", filter.String())

			attrs, err := children[7].Sequence()
			assert.NoError(t, err)
			if assert.Len(t, attrs, 2) {
				assert.Equal(t, "cn", attrs[0].StringValue())
				assert.Equal(t, "mail", attrs[1].StringValue())
			}
		}
		if assert.Len(t, req.Controls, 1) {
			assert.Equal(t, controls.MatchingEntryCountRequestOID, req.Controls[0].OID())
		}

		writeMessage(t, server, ldap.Message{
			ID: req.ID,
			Op: entryOp(ldap.Entry{
				DN: "cn=alice,dc=example,dc=com",
				Attributes: []ldap.Attribute{
					{Name: "cn", Values: []string{"alice"}},
					{Name: "mail", Values: []string{"alice@example.com"}},
				},
			}),
			Controls: []ldap.Control{joinControl},
		})
		writeMessage(t, server, ldap.Message{
			ID: req.ID,
			Op: ber.NewSequence(ber.ApplicationType(ldap.OpSearchResultRef, true),
				ber.NewString(ber.TypeOctetString, "ldap://other.example.com/dc=example,dc=com")),
		})
		writeMessage(t, server, ldap.Message{
			ID:       req.ID,
			Op:       resultOp(ldap.OpSearchResultDone, ldap.ResultSuccess, "", ""),
			Controls: []ldap.Control{countControl, unknownControl},
		})
	})

	reqControl, err := controls.NewMatchingEntryCountRequestControl(false)
	require.NoError(t, err)

	out, err := conn.Search(context.Background(), ldap.SearchRequest{
		BaseDN:     "dc=example,dc=com",
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     ldap.Equality("objectClass", "person"),
		Attributes: []string{"cn", "mail"},
		Controls:   []ldap.Control{reqControl},
	})
	require.NoError(t, err)

	require.Len(t, out.Entries, 1)
	entry := out.Entries[0]
	require.Equal(t, "cn=alice,dc=example,dc=com", entry.DN)
	require.Equal(t, "alice@example.com", entry.AttributeValue("mail"))

	// The per-entry control arrives specialized through the registry.
	require.Len(t, entry.Controls, 1)
	join, ok := entry.Controls[0].(*controls.JoinResultControl)
	require.True(t, ok, "entry control has type %T", entry.Controls[0])
	require.Equal(t, ldap.ResultSuccess, join.ResultCode())
	joined := join.Entries()
	require.Len(t, joined, 1)
	require.Equal(t, "cn=manager,dc=example,dc=com", joined[0].DN)

	require.Equal(t, [][]string{{"ldap://other.example.com/dc=example,dc=com"}}, out.References)

	require.Equal(t, ldap.ResultSuccess, out.Result.Code)
	require.Len(t, out.Result.Controls, 2)
	count, ok := out.Result.Controls[0].(*controls.MatchingEntryCountResponseControl)
	require.True(t, ok, "done control has type %T", out.Result.Controls[0])
	require.Equal(t, controls.CountTypeExamined, count.CountType())
	value, present := count.CountValue()
	require.True(t, present)
	require.Equal(t, 5, value)
	require.True(t, count.SearchIndexed())

	// The registry has no decoder for the second control, so it stays an
	// envelope.
	env, ok := out.Result.Controls[1].(ldap.Envelope)
	require.True(t, ok, "unknown control has type %T", out.Result.Controls[1])
	require.Equal(t, "1.2.3.4.5", env.OID())
}

func TestConnSearchPartialResult(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: req.ID,
			Op: entryOp(ldap.Entry{DN: "cn=alice,dc=example,dc=com"}),
		})
		writeMessage(t, server, ldap.Message{
			ID: req.ID,
			Op: resultOp(ldap.OpSearchResultDone, ldap.ResultSizeLimitExceeded, "", "too many entries"),
		})
	})

	out, err := conn.Search(context.Background(), ldap.SearchRequest{
		BaseDN: "dc=example,dc=com",
		Scope:  ldap.ScopeWholeSubtree,
	})

	var resErr *ldap.ResultError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, ldap.ResultSizeLimitExceeded, resErr.Code)

	// Entries received before the failure are kept.
	require.Len(t, out.Entries, 1)
	require.Equal(t, "cn=alice,dc=example,dc=com", out.Entries[0].DN)
	require.Equal(t, ldap.ResultSizeLimitExceeded, out.Result.Code)
}

func TestConnUnbind(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		assert.Equal(t, ber.ApplicationType(ldap.OpUnbindRequest, false), req.Op.Type)
		assert.Empty(t, req.Op.Value)

		// The client closes without waiting for a response.
		_, err := ldap.ReadMessage(server, 0)
		assert.Equal(t, io.EOF, err)
	})

	require.NoError(t, conn.Unbind(context.Background()))

	_, err := conn.SimpleBind(context.Background(), "", "")
	require.ErrorIs(t, err, ldap.ErrConnClosed)

	// Close after unbind is a no-op.
	require.NoError(t, conn.Close())
}

func TestConnResponseIDMismatch(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: req.ID + 41,
			Op: resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", ""),
		})
	})

	_, err := conn.SimpleBind(context.Background(), "", "")
	require.Error(t, err)

	var connErr *ldap.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Contains(t, err.Error(), "does not match request ID")
}

func TestConnUnsolicitedNotification(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		if _, ok := readRequest(t, server); !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: 0,
			Op: resultOp(ldap.OpExtendedResponse, ldap.ResultUnavailable, "", "shutting down",
				ber.NewString(ber.ContextType(10, false), "1.3.6.1.4.1.1466.20036")),
		})
	})

	_, err := conn.SimpleBind(context.Background(), "", "")
	require.Error(t, err)

	var connErr *ldap.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Contains(t, err.Error(), "server terminated the session")
	require.Contains(t, err.Error(), "shutting down")
}

func TestConnMaxMessageSize(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		reply := ldap.Message{
			ID: req.ID,
			Op: resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", "a diagnostic long enough to trip the cap"),
		}
		// The client rejects the message after its header and closes without
		// draining it, so this write fails part way through.
		_, _ = server.Write(reply.Encode())
	}, ldap.MaxMessageSize(16))

	_, err := conn.SimpleBind(context.Background(), "", "")
	require.Error(t, err)

	var sizeErr *ldap.MessageSizeError
	require.ErrorAs(t, err, &sizeErr)
	require.Equal(t, uint32(16), sizeErr.Maximum)
}

func TestConnContextDeadline(t *testing.T) {
	t.Parallel()

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		_, ok := readRequest(t, server)
		if !ok {
			return
		}
		// Never respond. The read below returns once the client closes.
		_, err := ldap.ReadMessage(server, 0)
		assert.Equal(t, io.EOF, err)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := conn.SimpleBind(ctx, "", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnCriticalControlDecodeFailure(t *testing.T) {
	t.Parallel()

	// A critical control whose value does not decode fails the operation; a
	// non-critical one is kept as a generic envelope.
	badValue := []byte{0xFF}

	t.Run("critical", func(t *testing.T) {
		t.Parallel()

		bad, err := ldap.NewEnvelope(controls.MatchingEntryCountResponseOID, true, badValue)
		require.NoError(t, err)

		conn := dialScripted(t, func(t *testing.T, server net.Conn) {
			req, ok := readRequest(t, server)
			if !ok {
				return
			}
			writeMessage(t, server, ldap.Message{
				ID:       req.ID,
				Op:       resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", ""),
				Controls: []ldap.Control{bad},
			})
		})

		_, err = conn.SimpleBind(context.Background(), "", "")
		require.Error(t, err)

		var decodeErr *ldap.DecodeError
		require.ErrorAs(t, err, &decodeErr)
	})

	t.Run("non-critical", func(t *testing.T) {
		t.Parallel()

		bad, err := ldap.NewEnvelope(controls.MatchingEntryCountResponseOID, false, badValue)
		require.NoError(t, err)

		conn := dialScripted(t, func(t *testing.T, server net.Conn) {
			req, ok := readRequest(t, server)
			if !ok {
				return
			}
			writeMessage(t, server, ldap.Message{
				ID:       req.ID,
				Op:       resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", ""),
				Controls: []ldap.Control{bad},
			})
		})

		result, err := conn.SimpleBind(context.Background(), "", "")
		require.NoError(t, err)
		require.Len(t, result.Controls, 1)

		env, ok := result.Controls[0].(ldap.Envelope)
		require.True(t, ok, "control has type %T", result.Controls[0])
		require.Equal(t, controls.MatchingEntryCountResponseOID, env.OID())
	})
}

func TestConnMonitor(t *testing.T) {
	t.Parallel()

	var (
		sent     []*event.MessageSentEvent
		received []*event.MessageReceivedEvent
		failed   []*event.MessageFailedEvent
	)
	monitor := &event.MessageMonitor{
		Sent: func(_ context.Context, e *event.MessageSentEvent) {
			sent = append(sent, e)
		},
		Received: func(_ context.Context, e *event.MessageReceivedEvent) {
			received = append(received, e)
		},
		Failed: func(_ context.Context, e *event.MessageFailedEvent) {
			failed = append(failed, e)
		},
	}

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		bind, ok := readRequest(t, server)
		if !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: bind.ID,
			Op: resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", ""),
		})

		search, ok := readRequest(t, server)
		if !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: search.ID,
			Op: entryOp(ldap.Entry{DN: "cn=alice,dc=example,dc=com"}),
		})
		writeMessage(t, server, ldap.Message{
			ID: search.ID,
			Op: resultOp(ldap.OpSearchResultDone, ldap.ResultSuccess, "", ""),
		})
	}, ldap.Monitor(monitor))

	_, err := conn.SimpleBind(context.Background(), "", "")
	require.NoError(t, err)
	_, err = conn.Search(context.Background(), ldap.SearchRequest{BaseDN: "dc=example,dc=com"})
	require.NoError(t, err)

	// One sent event per request; one received event per response message.
	require.Len(t, sent, 2)
	require.Len(t, received, 3)
	require.Empty(t, failed)

	require.Equal(t, "bind", sent[0].OperationName)
	require.Equal(t, int32(1), sent[0].MessageID)
	require.Equal(t, "search", sent[1].OperationName)
	require.Equal(t, int32(2), sent[1].MessageID)

	// The sent payload is the encoded request.
	msg, err := ldap.DecodeMessage(sent[0].Message)
	require.NoError(t, err)
	require.Equal(t, int32(1), msg.ID)

	for _, e := range received {
		require.Equal(t, sent[0].ConnectionID, e.ConnectionID)
		require.GreaterOrEqual(t, e.DurationNanos, int64(0))
		require.NotEmpty(t, e.Reply)
	}
	require.Equal(t, "search", received[1].OperationName)
	require.Equal(t, "search", received[2].OperationName)
}

func TestConnMonitorFailed(t *testing.T) {
	t.Parallel()

	var failed []*event.MessageFailedEvent
	monitor := &event.MessageMonitor{
		Failed: func(_ context.Context, e *event.MessageFailedEvent) {
			failed = append(failed, e)
		},
	}

	conn := dialScripted(t, func(t *testing.T, server net.Conn) {
		req, ok := readRequest(t, server)
		if !ok {
			return
		}
		writeMessage(t, server, ldap.Message{
			ID: req.ID + 1,
			Op: resultOp(ldap.OpBindResponse, ldap.ResultSuccess, "", ""),
		})
	}, ldap.Monitor(monitor))

	_, err := conn.SimpleBind(context.Background(), "", "")
	require.Error(t, err)

	require.Len(t, failed, 1)
	require.Equal(t, "bind", failed[0].OperationName)
	require.Contains(t, failed[0].Failure, "does not match request ID")
}

func TestDialRejectsTLS(t *testing.T) {
	t.Parallel()

	_, err := ldap.Dial(context.Background(), "ldaps://secure.example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "TLS connections are not supported")
}

func TestDialError(t *testing.T) {
	t.Parallel()

	dialer := &net.Dialer{Timeout: time.Nanosecond}
	_, err := ldap.Dial(context.Background(), "ldap://192.0.2.1", ldap.ContextDialerOpt(dialer))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unable to dial")
}
