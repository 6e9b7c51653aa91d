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

package rpcclient_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/hlrpc/certificates"
	"github.com/sabouaram/hlrpc/rpcclient"
	"github.com/sabouaram/hlrpc/rpcserver"
	"github.com/sabouaram/hlrpc/wire"
)

// blockingHandler is a test rpcserver.Handler whose calls block on a
// per-payload gate until the test explicitly releases that payload's key,
// letting a test hold an arbitrary number of RPC calls in flight at once.
type blockingHandler struct {
	started atomic.Int64

	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{gates: make(map[string]chan struct{})}
}

func (h *blockingHandler) gateFor(key string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gates[key]
	if !ok {
		g = make(chan struct{})
		h.gates[key] = g
	}
	return g
}

// release unblocks every call currently (or later) waiting on key. Safe to
// call before the matching call has started, since gateFor creates the gate
// lazily on first reference by either side.
func (h *blockingHandler) release(key string) {
	close(h.gateFor(key))
}

func (h *blockingHandler) Started() int64 {
	return h.started.Load()
}

func (h *blockingHandler) HandleRPCCall(ctx context.Context, payload []byte) ([]byte, error) {
	h.started.Add(1)
	gate := h.gateFor(string(payload))
	select {
	case <-gate:
		return payload, nil
	case <-ctx.Done():
		return nil, wire.ErrStatePoisoned
	}
}

func startBlockingServer(addr string) (*rpcserver.Server, *blockingHandler, context.CancelFunc) {
	cert, err := certificates.NewSelfSigned("localhost", time.Hour)
	Expect(err).NotTo(HaveOccurred())

	h := newBlockingHandler()
	srv := rpcserver.New(
		rpcserver.Config{Address: addr, TLSConfig: certificates.ServerConfigFromCert(cert)},
		func(update rpcserver.StateUpdateChannel) rpcserver.Handler { return h },
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()
	return srv, h, cancel
}

func connectClient(ctx context.Context, addr string) *rpcclient.Client[fakeRecord] {
	client := rpcclient.New[fakeRecord](rpcclient.Config{Host: addr, TLSConfig: certificates.ClientInsecure()}, fakeRecord{})
	Eventually(func() error { return client.Connect(ctx) }, 2*time.Second).Should(Succeed())
	return client
}

// The 257th concurrent call is rejected
// synchronously without disturbing the 256 already in flight, and freeing
// one of them lets a later submission through.
var _ = Describe("overflow", func() {
	It("rejects a 257th concurrent call and recovers once a slot frees", func() {
		_, handler, cancel := startBlockingServer("127.0.0.1:18931")
		defer cancel()

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()
		client := connectClient(ctx, "127.0.0.1:18931")

		const inFlight = 256
		results := make(chan error, inFlight)
		for i := 0; i < inFlight; i++ {
			key := fmt.Sprintf("call-%d", i)
			go func() {
				_, err := client.Call(ctx, []byte(key))
				results <- err
			}()
		}

		Eventually(handler.Started, 2*time.Second).Should(BeNumerically("==", inFlight))

		_, err := client.Call(ctx, []byte("overflow-probe"))
		Expect(err).To(Equal(wire.ErrTooManyCallsInFlight))

		handler.release("call-0")
		Eventually(results, time.Second).Should(Receive(BeNil()))

		handler.release("after-free")
		_, err = client.Call(ctx, []byte("after-free"))
		Expect(err).NotTo(HaveOccurred())

		for i := 1; i < inFlight; i++ {
			handler.release(fmt.Sprintf("call-%d", i))
		}
		for i := 1; i < inFlight; i++ {
			Eventually(results, time.Second).Should(Receive(BeNil()))
		}
	})
})

// Triggering Shutdown mid-flight resolves an outstanding call
// as cancelled rather than hanging forever.
var _ = Describe("shutdown mid-flight", func() {
	It("cancels an outstanding call when Shutdown is called", func() {
		_, handler, cancel := startBlockingServer("127.0.0.1:18932")
		defer cancel()

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()
		client := connectClient(ctx, "127.0.0.1:18932")

		result := make(chan error, 1)
		go func() {
			_, err := client.Call(ctx, []byte("never-released"))
			result <- err
		}()

		Eventually(handler.Started, 2*time.Second).Should(BeNumerically("==", 1))

		client.Shutdown()

		Eventually(result, 2*time.Second).Should(Receive(Equal(wire.ErrClientNotConnected)))
	})
})

// Regression test for the submit-channel drain on shutdown: a submission
// that Call enqueued but the loop had not yet read off the bounded submit
// channel must still be signalled on shutdown, not left to hang forever.
var _ = Describe("submit queue draining on shutdown", func() {
	It("resolves every outstanding submission, including ones still queued", func() {
		_, _, cancel := startBlockingServer("127.0.0.1:18933")
		defer cancel()

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()
		client := connectClient(ctx, "127.0.0.1:18933")

		const n = 20 // comfortably larger than the submit channel's capacity of 10
		results := make(chan error, n)
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("q-%d", i)
			go func() {
				_, err := client.Call(ctx, []byte(key))
				results <- err
			}()
		}

		// Give submissions a moment to queue up; some will still be sitting
		// in the bounded submit channel, never having reached the wire, when
		// Shutdown runs.
		time.Sleep(20 * time.Millisecond)
		client.Shutdown()

		for i := 0; i < n; i++ {
			Eventually(results, 2*time.Second).Should(Receive())
		}
	})
})
