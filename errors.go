// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf

import "errors"

// Error classes. Every error returned by the packages in this module matches
// at most one of these with errors.Is.
var (
	// ErrTransport is an USB I/O failure: stall, timeout or disconnect.
	ErrTransport = errors.New("bladerf: transport failure")
	// ErrProtocol is a malformed response: wrong magic or wrong target.
	ErrProtocol = errors.New("bladerf: protocol violation")
	// ErrOperationFailed is a response delivered with the success flag
	// cleared.
	ErrOperationFailed = errors.New("bladerf: operation failed")
	// ErrRange is a request outside the supported bounds. It is always
	// returned before any I/O.
	ErrRange = errors.New("bladerf: out of range")
	// ErrConvergence is a tuning search that ran out of iterations or did
	// not settle.
	ErrConvergence = errors.New("bladerf: failed to converge")
	// ErrInvalidState is an internal invariant violation.
	ErrInvalidState = errors.New("bladerf: invalid state")
)
