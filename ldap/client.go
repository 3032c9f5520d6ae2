// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pkg/errors"
	"github.com/xdg/stringprep"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/event"
)

var globalConnectionID int32

func nextConnectionID() int32 {
	return atomic.AddInt32(&globalConnectionID, 1)
}

// ErrConnClosed is returned by operations on a connection that has been
// closed or unbound.
var ErrConnClosed = errors.New("ldap: connection is closed")

// ContextDialer dials a transport for a connection. *net.Dialer satisfies
// this interface.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// defaultMaxMessageSize bounds inbound messages when no option overrides it.
const defaultMaxMessageSize = 10 * 1024 * 1024

func newConfig(opts ...Option) *config {
	cfg := &config{
		dialer:         &net.Dialer{},
		registry:       defaultRegistry,
		maxMessageSize: defaultMaxMessageSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// Option configures a connection.
type Option func(*config)

type config struct {
	dialer         ContextDialer
	registry       *Registry
	monitor        *event.MessageMonitor
	loggerFactory  logging.LoggerFactory
	maxMessageSize uint32
}

// ContextDialerOpt sets the dialer used to reach the server. Use this
// configuration option to dial through proxies or pre-established pipes.
func ContextDialerOpt(dialer ContextDialer) Option {
	return func(c *config) {
		c.dialer = dialer
	}
}

// ControlRegistry sets the registry used to specialize response controls.
// The default registry serves when this option is absent.
func ControlRegistry(registry *Registry) Option {
	return func(c *config) {
		c.registry = registry
	}
}

// Monitor sets the event monitor invoked around every message exchange.
func Monitor(monitor *event.MessageMonitor) Option {
	return func(c *config) {
		c.monitor = monitor
	}
}

// LoggerFactory sets the factory for the connection's logger. If absent,
// logging is disabled.
func LoggerFactory(factory logging.LoggerFactory) Option {
	return func(c *config) {
		c.loggerFactory = factory
	}
}

// MaxMessageSize caps the content length of inbound messages. Zero removes
// the cap.
func MaxMessageSize(size uint32) Option {
	return func(c *config) {
		c.maxMessageSize = size
	}
}

// Conn is a single connection to a directory server. Operations are
// synchronous and serialized: one request and its responses complete before
// the next request is written. A Conn is safe for concurrent use; concurrent
// operations simply queue on the connection.
type Conn struct {
	id        string
	addr      string
	transport net.Conn
	registry  *Registry
	monitor   *event.MessageMonitor
	log       logging.LeveledLogger
	maxSize   uint32

	mu     sync.Mutex
	nextID int32
	closed bool
}

// ConnectionError represents an error that occurred on a connection's
// transport.
type ConnectionError struct {
	ConnectionID string
	Wrapped      error

	message string
}

// Error gets a rolled-up error message.
func (e *ConnectionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("connection(%s) error: %s: %v", e.ConnectionID, e.message, e.Wrapped)
	}
	return fmt.Sprintf("connection(%s) error: %s", e.ConnectionID, e.message)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Wrapped
}

// Dial parses rawURL and opens a connection to the server it names. The DN,
// attribute, scope, and filter components of the URL are ignored here; they
// matter to URL-driven searches, not to the transport.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Conn, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return DialURL(ctx, u, opts...)
}

// DialURL opens a connection to the server named by u.
func DialURL(ctx context.Context, u URL, opts ...Option) (*Conn, error) {
	if u.Scheme == "ldaps" {
		return nil, errors.New("ldap: TLS connections are not supported")
	}

	cfg := newConfig(opts...)

	addr := u.Address()
	transport, err := cfg.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to dial %s", addr)
	}

	c := &Conn{
		id:        fmt.Sprintf("%s[-%d]", addr, nextConnectionID()),
		addr:      addr,
		transport: transport,
		registry:  cfg.registry,
		monitor:   cfg.monitor,
		maxSize:   cfg.maxMessageSize,
	}
	if cfg.loggerFactory != nil {
		c.log = cfg.loggerFactory.NewLogger("ldap-conn")
	}
	if c.log != nil {
		c.log.Infof("connected to %s", addr)
	}
	return c, nil
}

// String returns the connection's identifier.
func (c *Conn) String() string {
	return c.id
}

// Close closes the transport without sending an unbind request. Use Unbind
// for an orderly shutdown.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.log != nil {
		c.log.Infof("closing connection to %s", c.addr)
	}
	if err := c.transport.Close(); err != nil {
		return c.wrapError(err, "failed closing")
	}
	return nil
}

// Unbind sends an unbind request and closes the connection. The protocol
// defines no response to an unbind, so only write errors surface.
func (c *Conn) Unbind(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}

	op := ber.NewNull(ber.ApplicationType(OpUnbindRequest, false))
	msg := c.newMessageLocked(op, nil)
	writeErr := c.writeMessageLocked(ctx, "unbind", msg)
	closeErr := c.closeLocked()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// protocolVersion is the LDAP version sent in bind requests.
const protocolVersion = 3

// bindAuthSimpleTag is the context tag of the simple authentication choice
// inside a bind request.
const bindAuthSimpleTag = 0

// SimpleBind authenticates with a DN and password. The password is prepared
// with the SASLprep profile before transmission, per RFC 4513; passwords
// containing prohibited code points are rejected without touching the wire.
// An empty DN and password perform an anonymous bind.
//
// The result carries any response controls even when the returned error is a
// *ResultError.
func (c *Conn) SimpleBind(ctx context.Context, dn, password string, reqControls ...Control) (Result, error) {
	prepared := password
	if password != "" {
		var err error
		prepared, err = stringprep.SASLprep.Prepare(password)
		if err != nil {
			return Result{}, NewUsageError("error SASLprepping password: %v", err)
		}
	}

	op := ber.NewSequence(ber.ApplicationType(OpBindRequest, true),
		ber.NewInteger(ber.TypeInteger, protocolVersion),
		ber.NewString(ber.TypeOctetString, dn),
		ber.NewString(ber.ContextType(bindAuthSimpleTag, false), prepared),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{}, ErrConnClosed
	}

	msg := c.newMessageLocked(op, reqControls)
	started, err := c.sendLocked(ctx, "bind", msg)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.receiveLocked(ctx, "bind", msg.ID, started)
	if err != nil {
		return Result{}, err
	}
	if resp.Op.Type != ber.ApplicationType(OpBindResponse, true) {
		return Result{}, c.unexpectedOp("bind", resp.Op)
	}

	children, err := resp.Op.Sequence()
	if err != nil {
		return Result{}, wrapBERError(err, "bind response")
	}
	// The trailer may be followed by server SASL credentials, which a simple
	// bind never uses.
	result, _, err := decodeResultElements(children)
	if err != nil {
		return Result{}, err
	}
	result.Controls = resp.Controls
	return result, result.Err()
}

// DerefPolicy selects when the server dereferences aliases while searching.
// The values are the wire values of the SearchRequest derefAliases field.
type DerefPolicy int32

const (
	// DerefNever never dereferences aliases.
	DerefNever DerefPolicy = 0
	// DerefInSearching dereferences aliases in subordinates of the base
	// object.
	DerefInSearching DerefPolicy = 1
	// DerefFindingBase dereferences aliases while locating the base object.
	DerefFindingBase DerefPolicy = 2
	// DerefAlways dereferences aliases everywhere.
	DerefAlways DerefPolicy = 3
)

// SearchRequest describes a search operation. The zero value of Filter is
// the absolute-true filter, which matches every entry in scope.
type SearchRequest struct {
	BaseDN      string
	Scope       Scope
	DerefPolicy DerefPolicy
	SizeLimit   int32
	TimeLimit   int32
	TypesOnly   bool
	Filter      Filter
	Attributes  []string
	Controls    []Control
}

// SearchEntry is a returned entry along with any response controls the
// server attached to its message, such as a join result.
type SearchEntry struct {
	Entry
	Controls []Control
}

// SearchResult collects everything a search returned: the entries, any
// continuation references, and the final result trailer with its response
// controls.
type SearchResult struct {
	Entries    []SearchEntry
	References [][]string
	Result     Result
}

func searchRequestElement(req SearchRequest) (ber.Element, error) {
	if req.SizeLimit < 0 {
		return ber.Element{}, NewUsageError("search size limit %d is negative", req.SizeLimit)
	}
	if req.TimeLimit < 0 {
		return ber.Element{}, NewUsageError("search time limit %d is negative", req.TimeLimit)
	}
	filterEl, err := req.Filter.Element()
	if err != nil {
		return ber.Element{}, err
	}
	attrs := make([]ber.Element, len(req.Attributes))
	for i, a := range req.Attributes {
		attrs[i] = ber.NewString(ber.TypeOctetString, a)
	}
	return ber.NewSequence(ber.ApplicationType(OpSearchRequest, true),
		ber.NewString(ber.TypeOctetString, req.BaseDN),
		ber.NewInteger(ber.TypeEnumerated, int64(req.Scope)),
		ber.NewInteger(ber.TypeEnumerated, int64(req.DerefPolicy)),
		ber.NewInteger(ber.TypeInteger, int64(req.SizeLimit)),
		ber.NewInteger(ber.TypeInteger, int64(req.TimeLimit)),
		ber.NewBoolean(ber.TypeBoolean, req.TypesOnly),
		filterEl,
		ber.NewSequence(ber.TypeSequence, attrs...),
	), nil
}

// Search runs a search and accumulates its responses until the server sends
// the final done message. A non-success result code yields both the partial
// result and a *ResultError; entries received before the failure are kept.
func (c *Conn) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	op, err := searchRequestElement(req)
	if err != nil {
		return SearchResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SearchResult{}, ErrConnClosed
	}

	msg := c.newMessageLocked(op, req.Controls)
	started, err := c.sendLocked(ctx, "search", msg)
	if err != nil {
		return SearchResult{}, err
	}

	var out SearchResult
	for {
		resp, err := c.receiveLocked(ctx, "search", msg.ID, started)
		if err != nil {
			return SearchResult{}, err
		}

		switch resp.Op.Type {
		case ber.ApplicationType(OpSearchResultEntry, true):
			entry, err := DecodeEntryElement(resp.Op)
			if err != nil {
				return SearchResult{}, err
			}
			out.Entries = append(out.Entries, SearchEntry{Entry: entry, Controls: resp.Controls})

		case ber.ApplicationType(OpSearchResultRef, true):
			uris, err := resp.Op.Sequence()
			if err != nil {
				return SearchResult{}, wrapBERError(err, "search result reference")
			}
			ref := make([]string, len(uris))
			for i, u := range uris {
				if err := ber.Expect(u, ber.TypeOctetString); err != nil {
					return SearchResult{}, wrapBERError(err, "search result reference URL")
				}
				ref[i] = u.StringValue()
			}
			out.References = append(out.References, ref)

		case ber.ApplicationType(OpSearchResultDone, true):
			children, err := resp.Op.Sequence()
			if err != nil {
				return SearchResult{}, wrapBERError(err, "search result done")
			}
			result, _, err := decodeResultElements(children)
			if err != nil {
				return SearchResult{}, err
			}
			result.Controls = resp.Controls
			out.Result = result
			return out, result.Err()

		default:
			return SearchResult{}, c.unexpectedOp("search", resp.Op)
		}
	}
}

// newMessageLocked assigns the next message ID. Callers hold c.mu.
func (c *Conn) newMessageLocked(op ber.Element, reqControls []Control) Message {
	c.nextID++
	return Message{ID: c.nextID, Op: op, Controls: reqControls}
}

// applyDeadline maps the context deadline onto the transport.
func (c *Conn) applyDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.transport.SetDeadline(deadline); err != nil {
		return c.wrapError(err, "failed setting deadline")
	}
	return nil
}

// writeMessageLocked encodes and writes one message. Callers hold c.mu.
func (c *Conn) writeMessageLocked(ctx context.Context, opName string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.applyDeadline(ctx); err != nil {
		return err
	}
	encoded := msg.Encode()
	if _, err := c.transport.Write(encoded); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return c.wrapError(err, "failed writing")
	}
	if c.log != nil {
		c.log.Debugf("sent %s message %d (%d bytes)", opName, msg.ID, len(encoded))
	}
	if c.monitor != nil && c.monitor.Sent != nil {
		c.monitor.Sent(ctx, &event.MessageSentEvent{
			Message:       encoded,
			OperationName: opName,
			MessageID:     msg.ID,
			ConnectionID:  c.id,
		})
	}
	return nil
}

// sendLocked writes a request and notes the exchange start time.
func (c *Conn) sendLocked(ctx context.Context, opName string, msg Message) (time.Time, error) {
	started := time.Now()
	if err := c.writeMessageLocked(ctx, opName, msg); err != nil {
		return started, err
	}
	return started, nil
}

// receiveLocked reads the next response for the given request ID,
// specializes its controls, and reports monitor events. Callers hold c.mu.
func (c *Conn) receiveLocked(ctx context.Context, opName string, id int32, started time.Time) (Message, error) {
	msg, err := ReadMessage(c.transport, c.maxSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		err = c.wrapError(err, "failed reading")
		c.reportFailed(ctx, opName, id, started, err)
		return Message{}, err
	}
	if c.log != nil {
		c.log.Debugf("received message %d for %s", msg.ID, opName)
	}

	if msg.ID == 0 {
		err := c.unsolicitedError(msg)
		c.reportFailed(ctx, opName, id, started, err)
		return Message{}, err
	}
	if msg.ID != id {
		err := c.wrapError(newDecodeError(KindMalformed,
			"response message ID %d does not match request ID %d", msg.ID, id), "failed reading")
		c.reportFailed(ctx, opName, id, started, err)
		return Message{}, err
	}

	msg.Controls, err = c.specializeControls(msg.Controls)
	if err != nil {
		c.reportFailed(ctx, opName, id, started, err)
		return Message{}, err
	}

	if c.monitor != nil && c.monitor.Received != nil {
		c.monitor.Received(ctx, &event.MessageReceivedEvent{
			MessageFinishedEvent: event.MessageFinishedEvent{
				DurationNanos: time.Since(started).Nanoseconds(),
				OperationName: opName,
				MessageID:     id,
				ConnectionID:  c.id,
			},
			Reply: msg.Encode(),
		})
	}
	return msg, nil
}

func (c *Conn) reportFailed(ctx context.Context, opName string, id int32, started time.Time, err error) {
	if c.monitor == nil || c.monitor.Failed == nil {
		return
	}
	c.monitor.Failed(ctx, &event.MessageFailedEvent{
		MessageFinishedEvent: event.MessageFinishedEvent{
			DurationNanos: time.Since(started).Nanoseconds(),
			OperationName: opName,
			MessageID:     id,
			ConnectionID:  c.id,
		},
		Failure: err.Error(),
	})
}

// specializeControls runs each response control through the registry. A
// critical control whose decode fails is an operation failure; a non-critical
// one stays generic and is logged.
func (c *Conn) specializeControls(ctrls []Control) ([]Control, error) {
	for i, ctrl := range ctrls {
		typed, err := c.registry.DecodeControl(ctrl.Envelope())
		if err != nil {
			if ctrl.Critical() {
				return nil, err
			}
			if c.log != nil {
				c.log.Warnf("ignoring undecodable non-critical control %s: %v", ctrl.OID(), err)
			}
			continue
		}
		ctrls[i] = typed
	}
	return ctrls, nil
}

// noticeOfDisconnectionOID identifies the unsolicited notification a server
// sends before it terminates a session.
const noticeOfDisconnectionOID = "1.3.6.1.4.1.1466.20036"

// extendedResponseNameTag is the context tag of the optional responseName
// field of an extended response.
const extendedResponseNameTag = 10

// unsolicitedError turns an unsolicited notification (message ID zero) into
// a connection error carrying the server's diagnostic.
func (c *Conn) unsolicitedError(msg Message) error {
	detail := "server sent an unsolicited notification"
	if msg.Op.Type == ber.ApplicationType(OpExtendedResponse, true) {
		if children, err := msg.Op.Sequence(); err == nil {
			if result, rest, err := decodeResultElements(children); err == nil {
				detail = fmt.Sprintf("%s: %s (%d)", notificationName(rest),
					result.Code, int32(result.Code))
				if result.Diagnostic != "" {
					detail += ": " + result.Diagnostic
				}
			}
		}
	}
	return &ConnectionError{ConnectionID: c.id, message: detail}
}

func notificationName(rest []ber.Element) string {
	for _, el := range rest {
		if el.Type == ber.ContextType(extendedResponseNameTag, false) &&
			el.StringValue() == noticeOfDisconnectionOID {
			return "server terminated the session"
		}
	}
	return "server sent an unsolicited notification"
}

func (c *Conn) unexpectedOp(opName string, op ber.Element) error {
	return c.wrapError(newDecodeError(KindUnexpectedTag,
		"%s response has operation %v", opName, op.Type), "failed reading")
}

func (c *Conn) wrapError(inner error, message string) error {
	return &ConnectionError{
		ConnectionID: c.id,
		Wrapped:      inner,
		message:      message,
	}
}
