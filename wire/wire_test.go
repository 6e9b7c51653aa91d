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

package wire_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/hlrpc/wire"
)

var _ = Describe("envelope codec", func() {
	Context("ClientRequest round-trip", func() {
		It("decodes exactly what was encoded", func() {
			msg := wire.ClientRequest{ID: 42, Payload: []byte("hello")}

			b, err := wire.EncodeClientRequest(msg)
			Expect(err).NotTo(HaveOccurred())

			got, err := wire.DecodeClientRequest(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(msg))
		})

		It("is deterministic for equal values", func() {
			msg := wire.ClientRequest{ID: 7, Payload: []byte("same")}

			a, err := wire.EncodeClientRequest(msg)
			Expect(err).NotTo(HaveOccurred())
			b, err := wire.EncodeClientRequest(msg)
			Expect(err).NotTo(HaveOccurred())

			Expect(a).To(Equal(b))
		})

		It("rejects malformed bytes without panicking", func() {
			_, err := wire.DecodeClientRequest([]byte{0xff, 0x00, 0x01})
			Expect(err).To(HaveOccurred())
		})
	})

	Context("ServerMessage variants", func() {
		It("round-trips an RPCResponse success", func() {
			msg := wire.NewRPCResponseOK(3, []byte("result"))

			b, err := wire.EncodeServerMessage(msg)
			Expect(err).NotTo(HaveOccurred())

			got, err := wire.DecodeServerMessage(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Kind).To(Equal(wire.KindRPCResponse))
			Expect(got.Output).To(Equal([]byte("result")))
			Expect(got.HasErr).To(BeFalse())
		})

		It("round-trips an RPCResponse error", func() {
			msg := wire.NewRPCResponseErr(9, wire.ErrTooManyCallsInFlight)

			b, err := wire.EncodeServerMessage(msg)
			Expect(err).NotTo(HaveOccurred())

			got, err := wire.DecodeServerMessage(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HasErr).To(BeTrue())
			Expect(got.Err).To(Equal(wire.ErrTooManyCallsInFlight))
		})

		It("round-trips a StateChange with ordered entries", func() {
			changes := []wire.FieldChange{
				{Field: "counter", Value: []byte{1}},
				{Field: "name", Value: []byte{2}},
			}
			msg := wire.NewStateChange(changes)

			b, err := wire.EncodeServerMessage(msg)
			Expect(err).NotTo(HaveOccurred())

			got, err := wire.DecodeServerMessage(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Changes).To(Equal(changes))
		})

		It("rejects malformed bytes without panicking", func() {
			_, err := wire.DecodeServerMessage([]byte{0xff, 0xff, 0xff})
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("RpcError", func() {
	It("reports the five defined variants as valid", func() {
		Expect(wire.ErrBadInputBytes.Valid()).To(BeTrue())
		Expect(wire.ErrBadOutputBytes.Valid()).To(BeTrue())
		Expect(wire.ErrTooManyCallsInFlight.Valid()).To(BeTrue())
		Expect(wire.ErrClientNotConnected.Valid()).To(BeTrue())
		Expect(wire.ErrStatePoisoned.Valid()).To(BeTrue())
	})

	It("reports NoError and out-of-range tags as invalid", func() {
		Expect(wire.NoError.Valid()).To(BeFalse())
		Expect(wire.RpcError(200).Valid()).To(BeFalse())
	})

	It("gives every defined variant a non-empty message", func() {
		for _, e := range []wire.RpcError{
			wire.ErrBadInputBytes, wire.ErrBadOutputBytes,
			wire.ErrTooManyCallsInFlight, wire.ErrClientNotConnected,
			wire.ErrStatePoisoned,
		} {
			Expect(e.Message()).NotTo(BeEmpty())
		}
	})
})
