// Copyright 2026 Norda ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the GPU compute device built on WebGPU.
//
// WebGPU is a cross-platform compute API backed by D3D12 on Windows,
// Metal on macOS, and Vulkan on Linux. Arrays on this device must be
// float32; kernels without an integer-free formulation stay host-only.
//
// Example:
//
//	dev, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//	eng := ndarray.NewEngine(dev)
package webgpu

import (
	internalwebgpu "github.com/norda-ml/norda/internal/device/webgpu"
	"github.com/norda-ml/norda/ndarray"
)

// Device is the WebGPU backend.
type Device = internalwebgpu.Device

// Compile-time check that Device satisfies the engine's device interface.
var _ ndarray.Device = (*Device)(nil)

// New initializes the default GPU adapter. Returns an error when no
// WebGPU runtime or adapter is available.
func New() (*Device, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be acquired without
// initializing a device.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
