// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usbdev provides access to a single USB device with one bulk IN
// and one bulk OUT endpoint.
package usbdev

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	usb "github.com/google/gousb"
)

// ErrNotFound is returned by Open if there is no device with the given
// vendor and product ID on the bus.
var ErrNotFound = errors.New("no such device")

const DefaultTimeout = time.Second

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "usbdev: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// Endpoint describes an endpoint found in the device descriptors.
type Endpoint struct {
	Addr          uint8 // bit 7 set for IN endpoints
	MaxPacketSize int
}

// Device is an opened USB device. Its bulk endpoints must be bound with
// Bind before Read or Write are used.
type Device struct {
	ctx  *usb.Context
	dev  *usb.Device
	cfg  *usb.Config
	intf *usb.Interface
	ie   *usb.InEndpoint
	oe   *usb.OutEndpoint

	in, out Endpoint

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// newContext is usb.NewContext, replaceable in tests.
var newContext = usb.NewContext

// openContext returns a new libusb context. usb.NewContext panics if
// libusb can't be initialized (no usbfs), this is turned into an error.
func openContext() (ctx *usb.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("libusb init: %v", r)
		}
	}()
	return newContext(), nil
}

// Exists reports whether a device with the given IDs is connected. It
// never opens the device and treats enumeration errors as "not found".
func Exists(vendor, product usb.ID) bool {
	ctx, err := openContext()
	if err != nil {
		return false
	}
	defer ctx.Close()
	found := false
	ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if desc.Vendor == vendor && desc.Product == product {
			found = true
		}
		return false
	})
	return found
}

// Open opens the first device with the given IDs, selects configuration 1,
// claims interface 0 and records the last IN and OUT endpoints found in the
// device descriptors.
func Open(vendor, product usb.ID) (d *Device, err error) {
	defer wrapErr("Open", &err)
	ctx, err := openContext()
	if err != nil {
		return nil, err
	}
	devs, err := ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		return desc.Vendor == vendor && desc.Product == product
	})
	if len(devs) == 0 {
		ctx.Close()
		if err == nil {
			err = ErrNotFound
		}
		return nil, err
	}
	for _, dev := range devs[1:] {
		dev.Close()
	}
	d = &Device{
		ctx:          ctx,
		dev:          devs[0],
		ReadTimeout:  DefaultTimeout,
		WriteTimeout: DefaultTimeout,
	}
	defer func() {
		if err != nil {
			d.Close()
			d = nil
		}
	}()
	d.dev.SetAutoDetach(true) // not supported on all systems
	if d.cfg, err = d.dev.Config(1); err != nil {
		return
	}
	if d.intf, err = d.cfg.Interface(0, 0); err != nil {
		return
	}
	d.in, d.out = scanEndpoints(d.dev.Desc)
	return d, nil
}

func scanEndpoints(desc *usb.DeviceDesc) (in, out Endpoint) {
	for _, cn := range slices.Sorted(maps.Keys(desc.Configs)) {
		for _, id := range desc.Configs[cn].Interfaces {
			for _, is := range id.AltSettings {
				for _, ea := range slices.Sorted(maps.Keys(is.Endpoints)) {
					ed := is.Endpoints[ea]
					ep := Endpoint{uint8(ed.Address), ed.MaxPacketSize}
					if ed.Direction == usb.EndpointDirectionIn {
						in = ep
					} else {
						out = ep
					}
				}
			}
		}
	}
	return
}

// Endpoints returns the IN and OUT endpoints found by Open.
func (d *Device) Endpoints() (in, out Endpoint) {
	return d.in, d.out
}

func (d *Device) SetTimeouts(read, write time.Duration) {
	d.ReadTimeout, d.WriteTimeout = read, write
}

// Bind opens the bulk endpoints with the given addresses.
func (d *Device) Bind(in, out uint8) (err error) {
	defer wrapErr("Bind", &err)
	if d.ie, err = d.intf.InEndpoint(int(in & 0x0f)); err != nil {
		return
	}
	d.oe, err = d.intf.OutEndpoint(int(out & 0x0f))
	return
}

// Read performs one bulk IN transfer limited by ReadTimeout.
func (d *Device) Read(p []byte) (n int, err error) {
	defer wrapErr("Read", &err)
	if d.ie == nil {
		return 0, errors.New("IN endpoint not bound")
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.ReadTimeout)
	defer cancel()
	return d.ie.ReadContext(ctx, p)
}

// Write performs one bulk OUT transfer limited by WriteTimeout.
func (d *Device) Write(p []byte) (n int, err error) {
	defer wrapErr("Write", &err)
	if d.oe == nil {
		return 0, errors.New("OUT endpoint not bound")
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.WriteTimeout)
	defer cancel()
	return d.oe.WriteContext(ctx, p)
}

// Close releases the interface, the configuration and the device. It is
// safe to call Close more than once.
func (d *Device) Close() (err error) {
	d.ie, d.oe = nil, nil
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	if d.dev != nil {
		d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		err = d.ctx.Close()
		d.ctx = nil
	}
	wrapErr("Close", &err)
	return
}
