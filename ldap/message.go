// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/dirkit/ldap-go-driver/ber"
)

// Application tag numbers of the protocol operations this driver exchanges.
const (
	OpBindRequest          byte = 0
	OpBindResponse         byte = 1
	OpUnbindRequest        byte = 2
	OpSearchRequest        byte = 3
	OpSearchResultEntry    byte = 4
	OpSearchResultDone     byte = 5
	OpSearchResultRef      byte = 19
	OpExtendedRequest      byte = 23
	OpExtendedResponse     byte = 24
	OpIntermediateResponse byte = 25
)

// controlsTag is the context-specific tag of the optional controls member of
// an LDAPMessage. The protocol uses implicit tagging, so the tagged element
// directly contains the concatenated control sequences.
const controlsTag = 0

// Message is a single LDAPMessage envelope:
//
//	SEQUENCE {
//	    messageID  INTEGER,
//	    protocolOp CHOICE { application-tagged operations },
//	    controls   [0] SEQUENCE OF control OPTIONAL }
//
// Op carries the application-tagged operation element as-is; interpreting it
// is the caller's concern. Controls decoded from the wire are generic
// Envelope values until specialized through a registry.
type Message struct {
	ID       int32
	Op       ber.Element
	Controls []Control
}

// Element returns the wire element of m.
func (m Message) Element() ber.Element {
	children := make([]ber.Element, 0, 3)
	children = append(children, ber.NewInteger(ber.TypeInteger, int64(m.ID)))
	children = append(children, m.Op)
	if len(m.Controls) > 0 {
		controls := make([]ber.Element, len(m.Controls))
		for i, c := range m.Controls {
			controls[i] = c.Envelope().element()
		}
		children = append(children, ber.NewSequence(ber.ContextType(controlsTag, true), controls...))
	}
	return ber.NewSequence(ber.TypeSequence, children...)
}

// AppendMessage appends the wire form of m to dst.
func AppendMessage(dst []byte, m Message) []byte {
	return m.Element().AppendTo(dst)
}

// Encode returns the wire form of m.
func (m Message) Encode() []byte {
	return m.Element().Encode()
}

// DecodeMessage parses src as exactly one LDAPMessage.
func DecodeMessage(src []byte) (Message, error) {
	el, err := ber.Decode(src)
	if err != nil {
		return Message{}, wrapBERError(err, "invalid message encoding")
	}
	return decodeMessageElement(el)
}

func decodeMessageElement(el ber.Element) (Message, error) {
	if err := ber.Expect(el, ber.TypeSequence); err != nil {
		return Message{}, wrapBERError(err, "message")
	}
	children, err := el.Sequence()
	if err != nil {
		return Message{}, wrapBERError(err, "message")
	}
	if len(children) < 2 || len(children) > 3 {
		return Message{}, newDecodeError(KindMalformed,
			"message has %d element(s), expected a message ID, an operation, and optional controls",
			len(children))
	}

	if err := ber.Expect(children[0], ber.TypeInteger); err != nil {
		return Message{}, wrapBERError(err, "message ID")
	}
	id, err := children[0].Int32()
	if err != nil {
		return Message{}, wrapBERError(err, "message ID")
	}
	if id < 0 {
		return Message{}, newDecodeError(KindMalformed, "message ID %d is negative", id)
	}

	op := children[1]
	if op.Type.Class() != ber.ClassApplication {
		return Message{}, newDecodeError(KindUnexpectedTag,
			"operation element has %v, expected an application type", op.Type)
	}

	msg := Message{ID: id, Op: op}
	if len(children) == 3 {
		ctrls := children[2]
		if ctrls.Type != ber.ContextType(controlsTag, true) {
			return Message{}, newDecodeError(KindUnexpectedTag,
				"controls element has %v, expected context-specific tag 0", ctrls.Type)
		}
		ctrlEls, err := ctrls.Sequence()
		if err != nil {
			return Message{}, wrapBERError(err, "controls")
		}
		if len(ctrlEls) > 0 {
			msg.Controls = make([]Control, len(ctrlEls))
			for i, c := range ctrlEls {
				env, err := decodeEnvelopeElement(c)
				if err != nil {
					return Message{}, err
				}
				msg.Controls[i] = env
			}
		}
	}
	return msg, nil
}

// MessageSizeError reports an inbound message whose content length exceeds
// the configured maximum. The message bytes are left unread.
type MessageSizeError struct {
	Length  int
	Maximum uint32
}

func (e *MessageSizeError) Error() string {
	return fmt.Sprintf("ldap: message of length %d exceeds the maximum of %d bytes",
		e.Length, e.Maximum)
}

// ReadMessage reads one LDAPMessage from r. The length is checked against
// maxSize before any content is read; zero means no limit. A clean EOF
// before the first byte is returned as io.EOF so read loops can detect an
// orderly close.
func ReadMessage(r io.Reader, maxSize uint32) (Message, error) {
	header := make([]byte, 2, 6)
	if _, err := io.ReadFull(r, header[:1]); err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, errors.Wrap(err, "unable to read message header")
	}
	if ber.Type(header[0]) != ber.TypeSequence {
		return Message{}, newDecodeError(KindUnexpectedTag,
			"message starts with %v, expected SEQUENCE", ber.Type(header[0]))
	}
	if _, err := io.ReadFull(r, header[1:2]); err != nil {
		return Message{}, errors.Wrap(eofIsUnexpected(err), "unable to read message header")
	}
	if header[1]&0x80 != 0 {
		numOctets := int(header[1] & 0x7F)
		if numOctets == 0 {
			return Message{}, wrapBERError(ber.ErrIndefiniteLength, "message header")
		}
		if numOctets > 4 {
			return Message{}, wrapBERError(ber.ErrInvalidLength, "message header")
		}
		header = header[:2+numOctets]
		if _, err := io.ReadFull(r, header[2:]); err != nil {
			return Message{}, errors.Wrap(eofIsUnexpected(err), "unable to read message header")
		}
	}

	length, _, err := ber.ReadLength(header[1:])
	if err != nil {
		return Message{}, wrapBERError(err, "message header")
	}
	if maxSize > 0 && uint32(length) > maxSize {
		return Message{}, &MessageSizeError{Length: length, Maximum: maxSize}
	}

	buf := make([]byte, len(header)+length)
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[len(header):]); err != nil {
		return Message{}, errors.Wrap(eofIsUnexpected(err), "unable to read message content")
	}
	return DecodeMessage(buf)
}

// eofIsUnexpected converts a bare EOF into io.ErrUnexpectedEOF. EOF mid
// message means the peer quit between octets of a single element.
func eofIsUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
