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

// Package logging is a small logrus setup shared by every subsystem:
// connection lifecycle, handshake, RPC dispatch, and state diff events all
// log through field-scoped entries derived from one base logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// base is the package-level logger every subsystem derives a field-scoped
// entry from.
var base = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}()

// SetLevel adjusts the package logger's verbosity, e.g. logrus.DebugLevel
// for development.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Conn returns a log entry scoped to one connection, identified by its
// remote address or any other stable label the caller has on hand.
func Conn(id string) *logrus.Entry {
	return base.WithField("conn", id)
}

// RPC returns a log entry scoped to one in-flight RPC slot.
func RPC(connID string, slot uint8) *logrus.Entry {
	return base.WithFields(logrus.Fields{"conn": connID, "rpc": slot})
}

// Base exposes the shared logger for callers (such as cmd/) that need to
// log outside of a connection or RPC scope.
func Base() *logrus.Logger {
	return base
}
