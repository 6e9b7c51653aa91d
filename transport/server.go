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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sabouaram/hlrpc/logging"
)

// ErrVersionMismatch is returned by Upgrade when the client's advertised
// sub-label is absent or does not match SubLabel().
var ErrVersionMismatch = errors.New("transport: sub-label missing or mismatched")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Upgrade inspects the incoming request's Sec-WebSocket-Protocol header; if
// it is absent or unequal to this build's SubLabel, it refuses the upgrade
// with 400 Bad Request and returns ErrVersionMismatch. On success it echoes
// the sub-label in the response and completes the WebSocket upgrade.
func Upgrade(c *gin.Context) (*websocket.Conn, error) {
	want := SubLabel()
	got := c.Request.Header.Get("Sec-WebSocket-Protocol")

	if got != want {
		logging.Base().WithFields(map[string]interface{}{
			"remote": c.Request.RemoteAddr,
			"wanted": want,
			"got":    got,
		}).Warn("transport: rejecting handshake, sub-label mismatch")
		c.AbortWithStatus(http.StatusBadRequest)
		return nil, ErrVersionMismatch
	}

	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Protocol", want)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, responseHeader)
	if err != nil {
		return nil, err
	}

	logging.Conn(c.Request.RemoteAddr).Debug("transport: handshake complete, upgraded to hardlight")
	return conn, nil
}
