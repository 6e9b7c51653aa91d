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

// Package metrics exposes a handful of Prometheus collectors for connection
// and RPC activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ActiveConnections tracks how many connections are currently
	// established, server side.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlrpc",
		Name:      "active_connections",
		Help:      "Number of currently established hardlight connections.",
	})

	// CallsInFlight tracks how many RPC calls are currently dispatched to a
	// handler and awaiting a response, server side.
	CallsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlrpc",
		Name:      "calls_in_flight",
		Help:      "Number of RPC calls currently being handled.",
	})

	// StateChangesEmitted counts StateChange envelopes sent to clients.
	StateChangesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlrpc",
		Name:      "state_changes_emitted_total",
		Help:      "Total number of StateChange envelopes emitted to clients.",
	})
)

// Registry bundles the collectors above into a dedicated registry a binary
// can expose via promhttp, rather than registering onto the global default
// registry (keeps repeated server construction in tests from panicking on
// duplicate registration).
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(ActiveConnections, CallsInFlight, StateChangesEmitted)
	return r
}
