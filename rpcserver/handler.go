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

	"github.com/sabouaram/hlrpc/wire"
)

// StateUpdateChannel is the channel a Handler uses to report a batch of
// field changes to the connection's write loop, which wraps them in a
// StateChange envelope.
type StateUpdateChannel = chan<- []wire.FieldChange

// Handler is the per-connection, user-supplied RPC dispatch target. A fresh
// Handler is created for every accepted connection via Factory.
type Handler interface {
	// HandleRPCCall dispatches one RPC request's opaque payload and returns
	// its opaque response payload, or a wire.RpcError on logical failure.
	// Any other error is reported to the caller as wire.ErrBadOutputBytes.
	HandleRPCCall(ctx context.Context, payload []byte) ([]byte, error)
}

// Factory creates a new Handler bound to one connection's state-update
// channel. A plain function value suffices; no closure state beyond what
// the application chooses.
type Factory func(update StateUpdateChannel) Handler

// Poisoner is an optional capability a Handler implements to let the
// panic-recovery boundary in invokeHandler mark its per-connection state
// poisoned after a recovered panic, so later Lock calls keep reporting
// StatePoisoned. Without this hook the core has no way to reach into an
// opaque Handler's state; such a Handler only gets the one-off
// wire.ErrStatePoisoned response for the panicking call itself.
type Poisoner interface {
	PoisonState()
}
