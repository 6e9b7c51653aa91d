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

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sabouaram/hlrpc/logging"
)

// Dial opens a WebSocket over TLS to wss://<host>/ carrying the hardlight
// sub-label header, then verifies the server echoed it back exactly.
// ErrVersionMismatch is returned if the response doesn't echo it, before
// any application code is told the connection is ready.
func Dial(ctx context.Context, host string, tlsConfig *tls.Config) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig: tlsConfig,
	}

	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", SubLabel())

	url := fmt.Sprintf("wss://%s/", host)
	logging.Base().WithField("host", host).Debug("transport: connecting")

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}

	echoed := resp.Header.Get("Sec-WebSocket-Protocol")
	if echoed != SubLabel() {
		_ = conn.Close()
		logging.Base().WithFields(map[string]interface{}{
			"host": host, "wanted": SubLabel(), "got": echoed,
		}).Error("transport: server echoed unexpected sub-label")
		return nil, ErrVersionMismatch
	}

	return conn, nil
}
