// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"
	"fmt"
	"time"

	"github.com/embeddedgo/feltools/feltool/internal/awusb"
	"github.com/embeddedgo/feltools/feltool/internal/usbdev"
	usb "github.com/google/gousb"
)

// Device is an opened USB device with one bulk IN and one bulk OUT
// endpoint. Read and Write perform a single transfer each.
type Device interface {
	Endpoints() (in, out usbdev.Endpoint)
	Bind(in, out uint8) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Bus finds and opens devices.
type Bus interface {
	Exists(vendor, product uint16) bool
	Open(vendor, product uint16) (Device, error)
}

// USB is the Bus of the host USB subsystem.
type USB struct{}

func (USB) Exists(vendor, product uint16) bool {
	return usbdev.Exists(usb.ID(vendor), usb.ID(product))
}

func (USB) Open(vendor, product uint16) (Device, error) {
	d, err := usbdev.Open(usb.ID(vendor), usb.ID(product))
	if err != nil {
		return nil, err
	}
	return d, nil
}

type timeouter interface {
	SetTimeouts(read, write time.Duration)
}

// Session is a connection to one device.
type Session struct {
	bus  Bus
	cfg  Config
	dev  Device
	mode Mode

	fes1      []byte
	uboot     []byte
	cmdOffset int // offset of the bootcmd value in uboot or -1

	dramReady bool

	reqBuf [awusb.RequestSize]byte
	msgBuf [awusb.MessageSize]byte
}

// New returns a closed session that will use bus to find the device. A
// session with a nil bus never finds one.
func New(bus Bus, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{bus: bus, cfg: cfg, cmdOffset: -1}
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// SetFes1 sets the stage-1 binary used to initialize DRAM.
func (s *Session) SetFes1(fes1 []byte) {
	s.fes1 = fes1
}

// SetUBoot sets the U-Boot binary used to run commands and locates its
// bootcmd variable.
func (s *Session) SetUBoot(uboot []byte) {
	s.uboot = uboot
	s.cmdOffset = -1
	if i := bytes.Index(uboot, []byte(cmdMarker)); i >= 0 {
		s.cmdOffset = i + len(cmdMarker)
	}
}

// CommandOffset returns the offset of the bootcmd value in the U-Boot
// binary or -1 if it was not found.
func (s *Session) CommandOffset() int {
	return s.cmdOffset
}

// DRAMReady reports whether DRAM was initialized since the session was
// opened.
func (s *Session) DRAMReady() bool {
	return s.dramReady
}

// IsOpen reports whether the session is connected to a device.
func (s *Session) IsOpen() bool {
	return s.dev != nil
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) logf(f string, args ...any) {
	if s.cfg.Log != nil {
		s.cfg.Log(fmt.Sprintf(f, args...))
	}
}

// Exists reports whether the configured device is connected.
func (s *Session) Exists() bool {
	if s.bus == nil {
		return false
	}
	return s.bus.Exists(s.cfg.VendorID, s.cfg.ProductID)
}

// Open closes any previous connection and connects to the device
// expecting it to be in the given mode. In FEL mode the device must answer
// the verify request with the expected board ID. The returned error wraps
// ErrNotFound, ErrEndpointMismatch, ErrIdentityMismatch or the transport
// error that made the open fail. No state of a failed open is retained.
func (s *Session) Open(mode Mode) (err error) {
	defer wrapErr("Open", &err)
	return s.open(mode)
}

func (s *Session) open(mode Mode) error {
	s.close()
	s.dramReady = false
	if s.bus == nil {
		return ErrNotFound
	}
	dev, err := s.bus.Open(s.cfg.VendorID, s.cfg.ProductID)
	if err != nil {
		return err
	}
	if t, ok := dev.(timeouter); ok {
		t.SetTimeouts(s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	}
	s.logf("checking USB endpoints...")
	in, out := dev.Endpoints()
	s.logf("IN endpoint found: 0x%02x, maxsize: %d", in.Addr, in.MaxPacketSize)
	s.logf("OUT endpoint found: 0x%02x, maxsize: %d", out.Addr, out.MaxPacketSize)
	wantIn, wantOut := mode.endpoints()
	if in.Addr != wantIn || out.Addr != wantOut {
		dev.Close()
		s.logf("device is not in %s mode", mode)
		return fmt.Errorf(
			"%w: IN 0x%02x OUT 0x%02x, %s mode needs IN 0x%02x OUT 0x%02x",
			ErrEndpointMismatch, in.Addr, out.Addr, mode, wantIn, wantOut,
		)
	}
	if err = dev.Bind(in.Addr, out.Addr); err != nil {
		dev.Close()
		return err
	}
	s.dev, s.mode = dev, mode
	if mode != FEL {
		return nil
	}
	s.logf("trying to verify device")
	info, err := s.verifyDevice()
	if err != nil {
		s.close()
		return err
	}
	if info.Board != BoardID {
		s.close()
		s.logf("invalid board ID: 0x%08x", info.Board)
		return fmt.Errorf("%w: 0x%08x", ErrIdentityMismatch, info.Board)
	}
	return nil
}

// Close closes the connection. It is safe to call Close on a closed
// session. Cached images are kept.
func (s *Session) Close() (err error) {
	err = s.close()
	wrapErr("Close", &err)
	return
}

func (s *Session) close() error {
	s.dramReady = false
	if s.dev == nil {
		return nil
	}
	err := s.dev.Close()
	s.dev = nil
	return err
}
