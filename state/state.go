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

// Package state implements the scoped state guard and diff-emission
// mechanism: a per-connection record is mutated under a mutex-backed
// guard, and on release the guard diffs the record against a pre-image
// snapshot and enqueues any changes as a single batch.
package state

import (
	"context"
	"sync"

	"github.com/sabouaram/hlrpc/wire"
)

// Record is the capability set the core requires from a user-supplied
// per-connection state type: it must be cloneable (for the pre-image), and
// it must know how to diff itself against a previous clone and how to apply
// a batch of field changes received from the server. One interface covers
// both the server role (clone, compare, encode) and the client role
// (decode-and-assign), so the same record type serves either side.
type Record[T any] interface {
	// Clone returns a value-equal copy of the receiver, used as the
	// pre-image at guard acquisition time.
	Clone() T
	// Diff compares the receiver against pre, returning one FieldChange per
	// field whose value differs. Implementations must walk fields in a
	// stable, deterministic order.
	Diff(pre T) []wire.FieldChange
	// Apply returns a copy of the receiver with each named field's decoded
	// value assigned. Unknown field names are ignored for forward
	// compatibility. Apply takes a value receiver (rather than mutating in
	// place) so that value types can satisfy Record[T] without a separate
	// pointer-receiver constraint.
	Apply(changes []wire.FieldChange) (T, error)
}

// ChangeSender is the narrow channel interface a ConnectionState enqueues
// onto; rpcserver's per-connection loop supplies the real channel, tests can
// supply a plain chan.
type ChangeSender interface {
	// TrySend attempts a non-blocking enqueue. It reports whether the send
	// succeeded; callers must never block the guard-release path on this.
	TrySend(changes []wire.FieldChange) bool
}

// chanSender adapts a buffered Go channel to ChangeSender using a
// non-blocking select: the release path never blocks, and a full or
// tearing-down channel drops the batch.
type chanSender struct {
	ch chan<- []wire.FieldChange
}

// NewChannelSender wraps ch as a ChangeSender.
func NewChannelSender(ch chan<- []wire.FieldChange) ChangeSender {
	return chanSender{ch: ch}
}

func (s chanSender) TrySend(changes []wire.FieldChange) bool {
	select {
	case s.ch <- changes:
		return true
	default:
		return false
	}
}

// ConnectionState owns the mutex around one connection's user-defined
// record and the channel changes are reported through.
type ConnectionState[T Record[T]] struct {
	mu       sync.Mutex
	record   T
	sender   ChangeSender
	poisoned bool
}

// New creates a ConnectionState seeded with initial and reporting diffs
// through sender.
func New[T Record[T]](initial T, sender ChangeSender) *ConnectionState[T] {
	return &ConnectionState[T]{record: initial, sender: sender}
}

// Guard is a scoped handle returned by Lock: it owns the mutex and a
// pre-image snapshot taken at acquisition time. Callers must call Release
// exactly once, normally via defer immediately after Lock returns; the
// diff is computed and enqueued at Release time.
type Guard[T Record[T]] struct {
	cs       *ConnectionState[T]
	pre      T
	released bool
}

// Lock acquires the state mutex and returns a Guard wrapping a live pointer
// to the record plus its pre-image. If a previous guard's handler panicked
// while holding the mutex, Lock returns wire.ErrStatePoisoned instead of a
// Guard.
func (cs *ConnectionState[T]) Lock(_ context.Context) (*Guard[T], error) {
	cs.mu.Lock()
	if cs.poisoned {
		cs.mu.Unlock()
		return nil, wire.ErrStatePoisoned
	}
	return &Guard[T]{cs: cs, pre: cs.record.Clone()}, nil
}

// Get returns a pointer to the live record for the caller to mutate while
// the guard is held.
func (g *Guard[T]) Get() *T {
	return &g.cs.record
}

// Release computes the diff against the pre-image, enqueues it if
// non-empty, and unlocks the mutex. It must be called exactly once per
// Lock, typically via defer. Calling Release twice is a no-op the second
// time.
func (g *Guard[T]) Release() {
	if g.released {
		return
	}
	g.released = true

	changes := g.cs.record.Diff(g.pre)
	if len(changes) > 0 {
		g.cs.sender.TrySend(changes)
	}
	g.cs.mu.Unlock()
}

// Poison marks the connection state unusable after a handler panic was
// recovered while the mutex was held. Subsequent Lock calls return
// wire.ErrStatePoisoned. Callers recovering a panic must still call
// Release/unlock before calling Poison; see rpcserver's handler wrapper.
func (cs *ConnectionState[T]) Poison() {
	cs.mu.Lock()
	cs.poisoned = true
	cs.mu.Unlock()
}

// Snapshot returns a clone of the current record without holding a guard,
// for read-only access such as serving a plain Get() RPC that only reads.
func (cs *ConnectionState[T]) Snapshot() T {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.record.Clone()
}
