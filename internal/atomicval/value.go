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

// Package atomicval provides a small generic atomic value wrapper with
// Load/Store/CompareAndSwap and a configurable default for an empty Load.
package atomicval

import "sync/atomic"

// Value holds a single value of type T that can be read and written
// atomically from multiple goroutines without a mutex.
type Value[T any] struct {
	av atomic.Value
	dl atomic.Value
}

// box wraps T so that a zero T can still be stored in an atomic.Value
// (atomic.Value panics on storing the untyped nil interface, which a bare
// atomic.Value[T] would do for T's zero value in the pointer/interface
// cases).
type box[T any] struct {
	v T
}

// SetDefaultLoad configures the value returned by Load before any Store has
// happened.
func (o *Value[T]) SetDefaultLoad(def T) {
	o.dl.Store(box[T]{v: def})
}

// Load returns the current value, or the configured default-load value (the
// zero value of T if none was configured) if Store has never been called.
func (o *Value[T]) Load() T {
	if b, ok := o.av.Load().(box[T]); ok {
		return b.v
	}
	if b, ok := o.dl.Load().(box[T]); ok {
		return b.v
	}
	var zero T
	return zero
}

// Store sets the value atomically.
func (o *Value[T]) Store(v T) {
	o.av.Store(box[T]{v: v})
}

// CompareAndSwap atomically compares the current value with old (by the
// default equality of box[T] comparison via the stored interface value) and,
// if they match, stores new. It reports whether the swap took place.
func (o *Value[T]) CompareAndSwap(old, new T) bool {
	return o.av.CompareAndSwap(box[T]{v: old}, box[T]{v: new})
}
