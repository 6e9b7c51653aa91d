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

// Package certificates builds the minimal TLS configuration this protocol
// needs: a single-cert server configuration (optionally self-signed) and a
// client configuration that either trusts the host root store or disables
// verification for testing. Cipher suites, curve preferences, and client
// certificate auth are left at their crypto/tls defaults; the protocol only
// requires TLS 1.2+ with one server certificate.
package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ServerConfig builds a *tls.Config for a single certificate/key pair
// loaded from disk.
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("certificates: loading key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ServerConfigFromCert builds a *tls.Config from an already-constructed
// certificate, the path used by NewSelfSigned.
func ServerConfigFromCert(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientTrust builds a *tls.Config that verifies the server certificate
// against the host's root certificate store.
func ClientTrust() (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("certificates: loading system root pool: %w", err)
	}
	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// ClientInsecure builds a *tls.Config that never verifies the server
// certificate. Intended for connecting to a self-signed NewSelfSigned
// server in tests and local demos only.
func ClientInsecure() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // explicit test/demo opt-in
		MinVersion:         tls.VersionTLS12,
	}
}

// AddRootCAFile loads a PEM-encoded CA certificate from disk and adds it to
// cfg's RootCAs pool, creating the pool if necessary.
func AddRootCAFile(cfg *tls.Config, pemFile string) error {
	b, err := os.ReadFile(pemFile)
	if err != nil {
		return fmt.Errorf("certificates: reading root CA file: %w", err)
	}
	if cfg.RootCAs == nil {
		cfg.RootCAs = x509.NewCertPool()
	}
	if !cfg.RootCAs.AppendCertsFromPEM(b) {
		return fmt.Errorf("certificates: no certificates found in %s", pemFile)
	}
	return nil
}
