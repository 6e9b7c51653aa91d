/*
 * MIT License
 *
 * Copyright (c) 2024 Salim Abouaram
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package wire defines the three envelope kinds exchanged over a hardlight
// connection and their deterministic binary encoding.
package wire

// ClientRequest is the sole client->server envelope: an RPC call keyed by a
// slot id in 0..=255, carrying an opaque application payload.
type ClientRequest struct {
	ID      uint8  `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint"`
}

// ServerMessageKind tags which of the three server->client variants a
// ServerMessage carries. The wire envelope is a flat struct rather than a
// tagged union because cbor has no native sum type; Kind plays that role.
type ServerMessageKind uint8

const (
	KindRPCResponse ServerMessageKind = iota
	KindStateChange
	KindNewEvent
)

// ServerMessage is the sole server->client envelope shape. Exactly one of
// the fields matching Kind is meaningful; the others are left zero.
type ServerMessage struct {
	Kind ServerMessageKind `cbor:"1,keyasint"`

	// RPCResponse fields.
	ID     uint8    `cbor:"2,keyasint"`
	Output []byte   `cbor:"3,keyasint"`
	Err    RpcError `cbor:"4,keyasint"`
	HasErr bool     `cbor:"5,keyasint"`

	// StateChange fields.
	Changes []FieldChange `cbor:"6,keyasint"`

	// NewEvent fields. Reserved: the core never constructs a message with
	// Kind == KindNewEvent, but the shape is defined so a future revision
	// can start emitting one without a wire break.
	EventName    string `cbor:"7,keyasint"`
	EventPayload []byte `cbor:"8,keyasint"`
}

// FieldChange is one field mutation: a stable field name and its encoded new
// value. Order within a StateChange's Changes is significant and must equal
// the order in which the diff was computed.
type FieldChange struct {
	Field string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// NewRPCResponseOK builds a successful RPCResponse envelope.
func NewRPCResponseOK(id uint8, output []byte) ServerMessage {
	return ServerMessage{Kind: KindRPCResponse, ID: id, Output: output}
}

// NewRPCResponseErr builds a failed RPCResponse envelope.
func NewRPCResponseErr(id uint8, err RpcError) ServerMessage {
	return ServerMessage{Kind: KindRPCResponse, ID: id, Err: err, HasErr: true}
}

// NewStateChange builds a StateChange envelope. Callers must not pass an
// empty slice; suppression of empty diffs is the emitter's job, not this
// constructor's.
func NewStateChange(changes []FieldChange) ServerMessage {
	return ServerMessage{Kind: KindStateChange, Changes: changes}
}
