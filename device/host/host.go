// Copyright 2026 Norda ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package host provides the host-memory compute device.
//
// The host device runs every kernel as a plain Go loop over strided
// storage. It supports all element types and is the reference backend
// for tests and machines without a GPU.
package host

import (
	internalhost "github.com/norda-ml/norda/internal/device/host"
	"github.com/norda-ml/norda/ndarray"
)

// Device is the host-memory backend.
type Device = internalhost.Device

// Compile-time check that Device satisfies the engine's device interface.
var _ ndarray.Device = (*Device)(nil)

// New creates a host device with no memory limit.
//
// Example:
//
//	dev := host.New()
//	eng := ndarray.NewEngine(dev)
func New() *Device {
	return internalhost.New()
}

// NewWithLimit creates a host device that refuses allocations once the
// total of live blocks would exceed limit bytes.
func NewWithLimit(limit int) *Device {
	return internalhost.NewWithLimit(limit)
}
