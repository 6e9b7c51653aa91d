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

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is a single deterministic cbor encoding mode shared by every
// Encode call: canonical map key ordering and shortest-form integers, so
// that equal values always produce equal bytes.
var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building canonical cbor encode mode: %v", err))
	}
	return m
}()

// decMode rejects duplicate map keys and refuses to panic on malformed
// input; Unmarshal below never panics on untrusted bytes, it returns an
// error.
var decMode = func() cbor.DecMode {
	opts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building cbor decode mode: %v", err))
	}
	return m
}()

// EncodeClientRequest encodes a ClientRequest deterministically.
func EncodeClientRequest(m ClientRequest) ([]byte, error) {
	return encMode.Marshal(m)
}

// DecodeClientRequest decodes an untrusted frame into a ClientRequest. It
// never panics; malformed input yields an error.
func DecodeClientRequest(b []byte) (ClientRequest, error) {
	var m ClientRequest
	if err := decMode.Unmarshal(b, &m); err != nil {
		return ClientRequest{}, fmt.Errorf("wire: decode client request: %w", err)
	}
	return m, nil
}

// EncodeServerMessage encodes a ServerMessage deterministically.
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	return encMode.Marshal(m)
}

// DecodeServerMessage decodes an untrusted frame into a ServerMessage. It
// never panics; malformed input yields an error.
func DecodeServerMessage(b []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := decMode.Unmarshal(b, &m); err != nil {
		return ServerMessage{}, fmt.Errorf("wire: decode server message: %w", err)
	}
	return m, nil
}
