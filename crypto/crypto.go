// MIT License
//
// Copyright (c) 2021-2023 TTBT Enterprises LLC
// Copyright (c) 2021-2023 Robin Thellend <rthellend@rthellend.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package crypto holds the host-side cryptographic primitives used to seal
// and open secrets: AES-GCM, PKCS#7 padding, passphrase stretching, and
// buffer zeroization. It does not know about the TPM; the device-bound key
// hierarchy lives in package tpm.
package crypto

import (
	"errors"
	"log"
)

var (
	// ErrDecryptFailed indicates that OpenGCM could not decrypt a
	// ciphertext because of a GCM tag mismatch. The message never echoes
	// key bytes or plaintext.
	ErrDecryptFailed = errors.New("decryption failed")
	// ErrInvalidPadding indicates that a PKCS#7-padded buffer was
	// malformed: wrong length, zero pad length, or inconsistent pad
	// bytes.
	ErrInvalidPadding = errors.New("invalid padding")
)

// Logger is the interface for writing operational logs. It never receives
// key material, plaintext, seeds, or secret names as arguments — callers
// are expected to log only operation names, durations, and byte counts.
type Logger interface {
	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	Error(...any)
	Errorf(string, ...any)
	Fatal(...any)
	Fatalf(string, ...any)
}

// Option configures a Logger or strict-wipe behavior for the packages that
// accept it (tpm.Device, the secrets manager).
type Option struct {
	logger     Logger
	strictWipe *bool
}

// WithLogger specifies the logger to use. Absent this option, StdLogger is
// used.
func WithLogger(l Logger) Option {
	return Option{logger: l}
}

// WithStrictWipe specifies whether strict wipe is required. When enabled,
// a resolved key garbage collected without Close having wiped its
// plaintext material causes a fatal log, via a runtime.SetFinalizer
// safety net.
func WithStrictWipe(v bool) Option {
	return Option{strictWipe: &v}
}

// applyLogger returns the logger carried by o, or cur if o carries none.
func (o Option) applyLogger(cur Logger) Logger {
	if o.logger != nil {
		return o.logger
	}
	return cur
}

// ResolveOptions folds a slice of Options into a (logger, strictWipe) pair,
// matching the teacher pattern of accumulating sparse functional options
// rather than building a fully-populated struct up front.
func ResolveOptions(opts ...Option) (Logger, bool) {
	logger := StdLogger()
	strict := false
	for _, opt := range opts {
		logger = opt.applyLogger(logger)
		if opt.strictWipe != nil {
			strict = *opt.strictWipe
		}
	}
	return logger, strict
}

// StdLogger returns a Logger backed by the standard log package.
func StdLogger() Logger {
	return defaultLogger{}
}

type defaultLogger struct{}

func (defaultLogger) Debug(args ...any) {
	args = append([]any{"DEBUG: "}, args...)
	log.Print(args...)
}

func (defaultLogger) Debugf(f string, args ...any) {
	log.Printf("DEBUG: "+f, args...)
}

func (defaultLogger) Info(args ...any) {
	args = append([]any{"INFO: "}, args...)
	log.Print(args...)
}

func (defaultLogger) Infof(f string, args ...any) {
	log.Printf("INFO: "+f, args...)
}

func (defaultLogger) Error(args ...any) {
	args = append([]any{"ERROR: "}, args...)
	log.Print(args...)
}

func (defaultLogger) Errorf(f string, args ...any) {
	log.Printf("ERROR: "+f, args...)
}

func (defaultLogger) Fatal(args ...any) {
	args = append([]any{"FATAL: "}, args...)
	log.Fatal(args...)
}

func (defaultLogger) Fatalf(f string, args ...any) {
	log.Fatalf("FATAL: "+f, args...)
}
