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

package wire

import "fmt"

// RpcError is the small closed enumeration of per-call failures that can be
// delivered through a completion handle. It is a pure wire tag: no trace,
// no wrapped cause.
type RpcError uint8

const (
	// NoError is the zero value and is never reported as a call failure. A
	// successful response carries it in the Err field; HasErr on
	// ServerMessage, not the Err value, marks a response as failed.
	NoError RpcError = iota
	ErrBadInputBytes
	ErrBadOutputBytes
	ErrTooManyCallsInFlight
	ErrClientNotConnected
	ErrStatePoisoned
)

var rpcErrorMessages = map[RpcError]string{
	NoError:                 "no error",
	ErrBadInputBytes:        "bad input bytes",
	ErrBadOutputBytes:       "bad output bytes",
	ErrTooManyCallsInFlight: "too many calls in flight",
	ErrClientNotConnected:   "client not connected",
	ErrStatePoisoned:        "state poisoned",
}

// Message returns the human-readable description of e, or "unknown rpc
// error" for any value outside the closed enumeration (which should never
// occur, since the set is fixed at compile time, but decoding untrusted
// bytes can manufacture an out-of-range tag).
func (e RpcError) Message() string {
	if m, ok := rpcErrorMessages[e]; ok {
		return m
	}
	return "unknown rpc error"
}

func (e RpcError) Error() string {
	return e.Message()
}

func (e RpcError) String() string {
	return fmt.Sprintf("RpcError(%d: %s)", uint8(e), e.Message())
}

// Valid reports whether e is one of the five defined error tags.
func (e RpcError) Valid() bool {
	_, ok := rpcErrorMessages[e]
	return ok && e != NoError
}
