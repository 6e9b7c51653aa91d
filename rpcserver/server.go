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

// Package rpcserver implements the server-side connection multiplexer and
// handler scheduler: one goroutine per accepted connection, owning the
// WebSocket, the handler instance, and the 256-entry busy table.
package rpcserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sabouaram/hlrpc/internal/atomicval"
	"github.com/sabouaram/hlrpc/logging"
	"github.com/sabouaram/hlrpc/transport"
)

// Config is the server's configurable surface: bind address and TLS
// material.
type Config struct {
	Address   string
	TLSConfig *tls.Config
}

// Server hosts one TLS+WebSocket listener and spawns one connection per
// accepted socket, each running its own handler instance produced by
// Factory.
type Server struct {
	cfg     Config
	factory Factory

	httpSrv *http.Server

	// runCtx is the long-lived context each accepted connection's event
	// loop is derived from. It must never be the per-request context
	// net/http hands handleUpgrade: that context is canceled the instant
	// ServeHTTP returns, which happens immediately after the hijack that
	// transport.Upgrade performs, and would tear down every connection
	// before its loop ever ran a single iteration.
	runCtx atomicval.Value[context.Context]
}

// New constructs a Server. factory is called once per accepted connection
// to produce a fresh Handler bound to that connection's state-update
// channel.
func New(cfg Config, factory Factory) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, factory: factory}
	s.runCtx.SetDefaultLoad(context.Background())

	router.GET("/", func(c *gin.Context) {
		s.handleUpgrade(c)
	})

	s.httpSrv = &http.Server{
		Addr:    cfg.Address,
		Handler: router,
	}
	return s
}

// Run listens and serves until ctx is canceled or a fatal listener error
// occurs. Every connection accepted while Run is active derives its
// lifetime from ctx, so canceling ctx tears down in-flight connections too.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx.Store(ctx)

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("rpcserver: listen: %w", err)
	}
	tlsLn := tlsListener(ln, s.cfg.TLSConfig)

	logging.Base().WithField("addr", s.cfg.Address).Info("rpcserver: listening with TLS")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(tlsLn)
	}()

	select {
	case <-ctx.Done():
		return s.httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleUpgrade(c *gin.Context) {
	ws, err := transport.Upgrade(c)
	if err != nil {
		return
	}

	remote := ws.RemoteAddr().String()
	log := logging.Conn(remote)
	log.Debug("rpcserver: connection fully established")

	conn := newConnection(ws, s.factory, log)
	connCtx := s.runCtx.Load()

	go func() {
		defer func() {
			_ = ws.Close()
		}()
		if err := conn.run(connCtx); err != nil {
			log.WithError(err).Warn("rpcserver: connection ended with error")
		}
	}()
}

func tlsListener(ln net.Listener, cfg *tls.Config) net.Listener {
	if cfg == nil {
		return ln
	}
	return tls.NewListener(ln, cfg)
}
