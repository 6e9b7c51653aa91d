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

package rpcserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sabouaram/hlrpc/logging"
	"github.com/sabouaram/hlrpc/metrics"
	"github.com/sabouaram/hlrpc/wire"
)

const slotCount = 256

// responseChanCap holds one pending response per slot; stateChangeChanCap
// bounds queued diff batches. A guard release that finds the state-change
// channel full drops its batch rather than blocking (see state.ChangeSender).
const (
	responseChanCap    = 256
	stateChangeChanCap = 10
)

type inboundFrame struct {
	data []byte
}

// connection is one accepted, upgraded WebSocket and the goroutine that
// owns it exclusively.
type connection struct {
	ws      *websocket.Conn
	handler Handler
	log     *logrus.Entry

	busy    *bitset.BitSet
	respCh  chan wire.ServerMessage
	stateCh chan []wire.FieldChange
}

func newConnection(ws *websocket.Conn, factory Factory, log *logrus.Entry) *connection {
	stateCh := make(chan []wire.FieldChange, stateChangeChanCap)
	c := &connection{
		ws:      ws,
		log:     log,
		busy:    bitset.New(slotCount),
		respCh:  make(chan wire.ServerMessage, responseChanCap),
		stateCh: stateCh,
	}
	c.handler = factory(stateCh)
	return c
}

// run is the single-threaded cooperative event loop: it is the sole reader
// and sole writer of c.ws. It returns when the connection should close,
// either because the socket closed, an inbound frame failed to decode, or
// ctx was canceled. A failed write is logged and the loop keeps running.
func (c *connection) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eg errgroup.Group
	defer func() {
		// Wait for in-flight handler goroutines to stop producing
		// responses before this method returns.
		_ = eg.Wait()
		// Slots still busy at teardown never reached the respCh branch
		// that normally decrements the gauge.
		metrics.CallsInFlight.Sub(float64(c.busy.Count()))
	}()

	frames := make(chan inboundFrame, 1)
	readErrs := make(chan error, 1)
	go c.readLoop(ctx, frames, readErrs)

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	var result error
	for {
		select {
		case <-ctx.Done():
			return result

		case err := <-readErrs:
			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.WithError(err).Debug("rpcserver: read loop ended")
			}
			return result

		case frame := <-frames:
			if err := c.handleFrame(ctx, frame, &eg); err != nil {
				c.log.WithError(err).Warn("rpcserver: terminating connection on decode failure")
				return multierror.Append(result, err).ErrorOrNil()
			}

		case msg := <-c.respCh:
			c.busy.Clear(uint(msg.ID))
			metrics.CallsInFlight.Dec()
			if err := c.send(msg); err != nil {
				c.log.WithError(err).Warn("rpcserver: failed to send RPC response")
				result = multierror.Append(result, err).ErrorOrNil()
				continue
			}

		case changes := <-c.stateCh:
			metrics.StateChangesEmitted.Inc()
			if err := c.send(wire.NewStateChange(changes)); err != nil {
				c.log.WithError(err).Warn("rpcserver: failed to send state change")
				result = multierror.Append(result, err).ErrorOrNil()
				continue
			}
		}
	}
}

func (c *connection) readLoop(ctx context.Context, frames chan<- inboundFrame, errs chan<- error) {
	for {
		mt, data, err := c.ws.ReadMessage()
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
		case frames <- inboundFrame{data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame decodes one inbound binary frame and, for an RpcRequest,
// spawns an independent handler goroutine. A decode failure is fatal to
// this connection only, never the process.
func (c *connection) handleFrame(ctx context.Context, frame inboundFrame, eg *errgroup.Group) error {
	req, err := wire.DecodeClientRequest(frame.data)
	if err != nil {
		return fmt.Errorf("decode client request: %w", err)
	}

	if c.busy.Test(uint(req.ID)) {
		c.log.WithField("rpc", req.ID).Warn("rpcserver: RPC call already in flight, ignoring duplicate")
		return nil
	}

	c.busy.Set(uint(req.ID))
	metrics.CallsInFlight.Inc()

	id := req.ID
	payload := req.Payload
	handler := c.handler
	respCh := c.respCh
	log := logging.RPC(c.ws.RemoteAddr().String(), id)

	eg.Go(func() error {
		output, callErr := invokeHandler(ctx, handler, payload, log)
		var msg wire.ServerMessage
		if callErr != nil {
			msg = wire.NewRPCResponseErr(id, toRPCError(callErr))
		} else {
			msg = wire.NewRPCResponseOK(id, output)
		}
		select {
		case respCh <- msg:
		case <-ctx.Done():
		}
		return nil
	})

	return nil
}

func (c *connection) send(msg wire.ServerMessage) error {
	b, err := wire.EncodeServerMessage(msg)
	if err != nil {
		return fmt.Errorf("encode server message: %w", err)
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// invokeHandler calls the user handler, recovering a panic and reporting it
// as wire.ErrStatePoisoned; an unrecovered panic in a spawned goroutine
// would take down the whole process.
func invokeHandler(ctx context.Context, h Handler, payload []byte, log *logrus.Entry) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("rpcserver: recovered panic in handler")
			if p, ok := h.(Poisoner); ok {
				p.PoisonState()
			}
			err = wire.ErrStatePoisoned
		}
	}()
	return h.HandleRPCCall(ctx, payload)
}

func toRPCError(err error) wire.RpcError {
	var rpcErr wire.RpcError
	if errors.As(err, &rpcErr) && rpcErr.Valid() {
		return rpcErr
	}
	return wire.ErrBadOutputBytes
}
