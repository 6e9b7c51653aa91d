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

// Command counterd hosts the counter demonstration handler (examples/counter)
// behind a TLS+WebSocket hardlight server.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sabouaram/hlrpc/certificates"
	"github.com/sabouaram/hlrpc/config"
	"github.com/sabouaram/hlrpc/examples/counter"
	"github.com/sabouaram/hlrpc/logging"
	"github.com/sabouaram/hlrpc/metrics"
	"github.com/sabouaram/hlrpc/rpcserver"
)

func main() {
	var (
		configPath  string
		bindAddr    string
		selfSigned  bool
		certFile    string
		keyFile     string
		metricsBind string
	)

	root := &cobra.Command{
		Use:   "counterd",
		Short: "Run the counter demonstration server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(configPath, bindAddr, selfSigned, certFile, keyFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, metricsBind)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a server config file (yaml/json/toml); overrides the flags below")
	root.Flags().StringVar(&bindAddr, "bind", "127.0.0.1:8443", "bind address")
	root.Flags().BoolVar(&selfSigned, "self-signed", true, "generate an in-memory self-signed certificate")
	root.Flags().StringVar(&certFile, "cert-file", "", "TLS certificate file, required when --self-signed=false")
	root.Flags().StringVar(&keyFile, "key-file", "", "TLS key file, required when --self-signed=false")
	root.Flags().StringVar(&metricsBind, "metrics-bind", "", "optional address to serve Prometheus metrics on, e.g. 127.0.0.1:9090")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logging.Base().WithError(err).Error("counterd: exiting with error")
		os.Exit(1)
	}
}

func resolveConfig(path, bind string, selfSigned bool, certFile, keyFile string) (config.ServerConfig, error) {
	if path != "" {
		return config.LoadServerConfig(path)
	}
	return config.ServerConfig{
		BindAddress: bind,
		SelfSigned:  selfSigned,
		CertFile:    certFile,
		KeyFile:     keyFile,
	}, nil
}

func run(ctx context.Context, cfg config.ServerConfig, metricsBind string) error {
	tlsCfg, err := tlsConfigFor(cfg)
	if err != nil {
		return err
	}

	if metricsBind != "" {
		go serveMetrics(metricsBind)
	}

	srv := rpcserver.New(
		rpcserver.Config{Address: cfg.BindAddress, TLSConfig: tlsCfg},
		counter.NewFactory(),
	)

	fmt.Printf("counterd: listening on %s\n", cfg.BindAddress)
	return srv.Run(ctx)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	logging.Base().WithField("addr", addr).Info("counterd: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Base().WithError(err).Warn("counterd: metrics listener stopped")
	}
}

func tlsConfigFor(cfg config.ServerConfig) (*tls.Config, error) {
	if !cfg.SelfSigned {
		return certificates.ServerConfig(cfg.CertFile, cfg.KeyFile)
	}

	host, _, err := net.SplitHostPort(cfg.BindAddress)
	if err != nil {
		host = cfg.BindAddress
	}

	cert, err := certificates.NewSelfSigned(host, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return certificates.ServerConfigFromCert(cert), nil
}
