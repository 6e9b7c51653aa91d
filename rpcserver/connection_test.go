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

package rpcserver_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/hlrpc/certificates"
	"github.com/sabouaram/hlrpc/rpcserver"
	"github.com/sabouaram/hlrpc/transport"
	"github.com/sabouaram/hlrpc/wire"
)

// gatedHandler blocks every call on one shared gate so a test can hold a
// slot busy for as long as it likes.
type gatedHandler struct {
	started atomic.Int64
	gate    chan struct{}
}

func (h *gatedHandler) HandleRPCCall(ctx context.Context, payload []byte) ([]byte, error) {
	h.started.Add(1)
	select {
	case <-h.gate:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func startGatedServer(ctx context.Context, addr string) *gatedHandler {
	cert, err := certificates.NewSelfSigned("localhost", time.Hour)
	Expect(err).NotTo(HaveOccurred())

	h := &gatedHandler{gate: make(chan struct{})}
	srv := rpcserver.New(
		rpcserver.Config{Address: addr, TLSConfig: certificates.ServerConfigFromCert(cert)},
		func(update rpcserver.StateUpdateChannel) rpcserver.Handler { return h },
	)
	go func() { _ = srv.Run(ctx) }()
	return h
}

func dialRaw(ctx context.Context, addr string) *websocket.Conn {
	var conn *websocket.Conn
	Eventually(func() error {
		var err error
		conn, err = transport.Dial(ctx, addr, certificates.ClientInsecure())
		return err
	}, 2*time.Second).Should(Succeed())
	return conn
}

func sendRequest(conn *websocket.Conn, id uint8, payload []byte) {
	b, err := wire.EncodeClientRequest(wire.ClientRequest{ID: id, Payload: payload})
	Expect(err).NotTo(HaveOccurred())
	Expect(conn.WriteMessage(websocket.BinaryMessage, b)).To(Succeed())
}

// A second RpcRequest reusing a busy ID is ignored; the first
// call still completes normally.
var _ = Describe("duplicate-ID guard", func() {
	It("ignores a request reusing an in-flight ID", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		handler := startGatedServer(ctx, "127.0.0.1:18712")
		conn := dialRaw(ctx, "127.0.0.1:18712")
		defer conn.Close()

		sendRequest(conn, 5, []byte("first"))
		Eventually(handler.started.Load, 2*time.Second).Should(BeNumerically("==", 1))

		sendRequest(conn, 5, []byte("second"))
		Consistently(handler.started.Load, 100*time.Millisecond).Should(BeNumerically("==", 1))

		close(handler.gate)

		_, data, err := conn.ReadMessage()
		Expect(err).NotTo(HaveOccurred())
		msg, err := wire.DecodeServerMessage(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Kind).To(Equal(wire.KindRPCResponse))
		Expect(msg.ID).To(Equal(uint8(5)))
		Expect(msg.Output).To(Equal([]byte("first")))

		// no second response ever arrives for the ignored duplicate
		Expect(conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))).To(Succeed())
		_, _, err = conn.ReadMessage()
		Expect(err).To(HaveOccurred())
	})
})

// A frame the server cannot decode terminates that connection only, never
// the process, and other connections keep working.
var _ = Describe("inbound decode failure", func() {
	It("closes the offending connection and leaves others untouched", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		handler := startGatedServer(ctx, "127.0.0.1:18713")
		close(handler.gate)

		bad := dialRaw(ctx, "127.0.0.1:18713")
		defer bad.Close()
		good := dialRaw(ctx, "127.0.0.1:18713")
		defer good.Close()

		Expect(bad.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x00, 0x01})).To(Succeed())

		Eventually(func() error {
			Expect(bad.SetReadDeadline(time.Now().Add(100 * time.Millisecond))).To(Succeed())
			_, _, err := bad.ReadMessage()
			return err
		}, 2*time.Second).Should(HaveOccurred())

		sendRequest(good, 0, []byte("still-alive"))
		_, data, err := good.ReadMessage()
		Expect(err).NotTo(HaveOccurred())
		msg, err := wire.DecodeServerMessage(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Output).To(Equal([]byte("still-alive")))
	})
})
