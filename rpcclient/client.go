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

// Package rpcclient implements the client-side call multiplexer and
// application bridge: a single goroutine owns the WebSocket and a 256-slot
// completion table, selecting among application submissions, inbound
// frames, and shutdown.
package rpcclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	"github.com/sabouaram/hlrpc/internal/atomicval"
	"github.com/sabouaram/hlrpc/logging"
	"github.com/sabouaram/hlrpc/state"
	"github.com/sabouaram/hlrpc/transport"
	"github.com/sabouaram/hlrpc/wire"
)

const slotCount = 256

// submitChanCap bounds how many submissions can queue ahead of the loop;
// overflow blocks the caller in Call, never drops.
const submitChanCap = 10

// Config is the client's configurable surface: host (including port) and
// TLS material.
type Config struct {
	Host      string
	TLSConfig *tls.Config
}

type callResult struct {
	output []byte
	err    error
}

type submission struct {
	payload    []byte
	completion chan callResult
}

// Client owns one persistent connection and its per-connection replica of
// the user's state record of type T.
type Client[T state.Record[T]] struct {
	cfg Config

	replica atomicval.Value[T]

	submitCh chan submission
	cancel   context.CancelFunc

	mu sync.Mutex
}

// New constructs a Client seeded with initial as the starting replica
// value, before any StateChange has been applied.
func New[T state.Record[T]](cfg Config, initial T) *Client[T] {
	c := &Client[T]{
		cfg:      cfg,
		submitCh: make(chan submission, submitChanCap),
	}
	c.replica.Store(initial)
	return c
}

// Connect dials the server, verifies the handshake, and spawns the
// connection's event loop. Connect returning nil is the readiness signal:
// after that, no error reaches this call path again. A failure in the
// running loop terminates the connection and is observed only as a closed
// completion channel on in-flight or future Call()s.
func (c *Client[T]) Connect(ctx context.Context) error {
	conn, err := transport.Dial(ctx, c.cfg.Host, c.cfg.TLSConfig)
	if err != nil {
		return fmt.Errorf("rpcclient: connect: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	lp := &loop[T]{
		ws:       conn,
		submitCh: c.submitCh,
		replica:  &c.replica,
		log:      logging.Conn(c.cfg.Host),
	}
	go lp.run(loopCtx)

	return nil
}

// Call submits payload as one RPC request and blocks until a response,
// cancellation (ctx done), or shutdown (the connection closed, observed as
// the completion channel closing without a value).
func (c *Client[T]) Call(ctx context.Context, payload []byte) ([]byte, error) {
	completion := make(chan callResult, 1)

	select {
	case c.submitCh <- submission{payload: payload, completion: completion}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res, ok := <-completion:
		if !ok {
			return nil, wire.ErrClientNotConnected
		}
		return res.output, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns the current local replica of the server's authoritative
// per-connection state, as last updated by an applied StateChange.
func (c *Client[T]) State() T {
	return c.replica.Load()
}

// Shutdown cancels the connection's event loop. Outstanding calls observe
// cancellation: their completion channel is closed without a value.
func (c *Client[T]) Shutdown() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// loop is the single-threaded cooperative event loop owning the WebSocket
// and the 256-slot completion table for one connection.
type loop[T state.Record[T]] struct {
	ws       *websocket.Conn
	submitCh chan submission
	replica  *atomicval.Value[T]
	log      interface {
		Debug(args ...interface{})
		Warn(args ...interface{})
	}

	busy  bitset.BitSet
	slots [slotCount]chan callResult
}

func (l *loop[T]) run(ctx context.Context) {
	defer func() {
		var merr *multierror.Error
		if err := l.ws.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
		l.drainSlots()
		l.drainSubmissions()
		if err := merr.ErrorOrNil(); err != nil {
			l.log.Debug("rpcclient: shutdown errors: ", err)
		}
	}()

	frames := make(chan []byte, 1)
	readErrs := make(chan error, 1)
	go l.readLoop(ctx, frames, readErrs)

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErrs:
			if err != nil {
				l.log.Debug("rpcclient: read loop ended: ", err)
			}
			return

		case sub := <-l.submitCh:
			l.handleSubmit(sub)

		case data := <-frames:
			l.handleFrame(data)
		}
	}
}

func (l *loop[T]) readLoop(ctx context.Context, frames chan<- []byte, errs chan<- error) {
	for {
		mt, data, err := l.ws.ReadMessage()
		if err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// handleSubmit runs the submit path: no-free-slot and encode failures
// reserve nothing, a send failure likewise, and only on send success is the
// slot actually occupied.
func (l *loop[T]) handleSubmit(sub submission) {
	id, ok := l.firstFreeSlot()
	if !ok {
		sub.completion <- callResult{err: wire.ErrTooManyCallsInFlight}
		return
	}

	msg := wire.ClientRequest{ID: id, Payload: sub.payload}
	b, err := wire.EncodeClientRequest(msg)
	if err != nil {
		sub.completion <- callResult{err: wire.ErrBadInputBytes}
		return
	}

	if err := l.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		sub.completion <- callResult{err: wire.ErrClientNotConnected}
		return
	}

	l.busy.Set(uint(id))
	l.slots[id] = sub.completion
}

// firstFreeSlot scans for the lowest-numbered slot not currently occupied.
// busy.Test(i) true means slot i IS occupied (a set bit marks "busy"); the
// bit is set only once a submission's frame has actually been sent.
func (l *loop[T]) firstFreeSlot() (uint8, bool) {
	for i := 0; i < slotCount; i++ {
		if !l.busy.Test(uint(i)) {
			return uint8(i), true
		}
	}
	return 0, false
}

func (l *loop[T]) handleFrame(data []byte) {
	msg, err := wire.DecodeServerMessage(data)
	if err != nil {
		l.log.Warn("rpcclient: received invalid frame, ignoring: ", err)
		return
	}

	switch msg.Kind {
	case wire.KindRPCResponse:
		ch := l.slots[msg.ID]
		l.slots[msg.ID] = nil
		l.busy.Clear(uint(msg.ID))
		if ch == nil {
			l.log.Warn("rpcclient: response for unknown RPC call, ignoring")
			return
		}
		if msg.HasErr {
			ch <- callResult{err: msg.Err}
		} else {
			ch <- callResult{output: msg.Output}
		}

	case wire.KindStateChange:
		cur := l.replica.Load()
		next, err := cur.Apply(msg.Changes)
		if err != nil {
			l.log.Warn("rpcclient: failed to apply state change: ", err)
			return
		}
		l.replica.Store(next)

	case wire.KindNewEvent:
		l.log.Warn("rpcclient: NewEvent not implemented yet, ignoring")
	}
}

func (l *loop[T]) drainSlots() {
	for i := 0; i < slotCount; i++ {
		if l.slots[i] != nil {
			close(l.slots[i])
			l.slots[i] = nil
		}
	}
}

// drainSubmissions closes the completion channel of every submission still
// sitting in the bounded submit channel at shutdown. Without this, a
// submission that Call enqueued but the loop never got around to reading
// would hang its caller: it was never stored into l.slots, so drainSlots
// cannot see it, and the caller would block on its completion channel until
// its own context happens to be canceled.
func (l *loop[T]) drainSubmissions() {
	for {
		select {
		case sub := <-l.submitCh:
			close(sub.completion)
		default:
			return
		}
	}
}
