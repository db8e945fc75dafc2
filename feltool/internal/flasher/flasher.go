// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flasher implements the high level operations of feltool on top
// of FEL sessions: booting an image from RAM, flashing boot images and
// U-Boot, raw flash access and U-Boot commands. Every operation opens its
// own session and closes it before return.
package flasher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/embeddedgo/feltools/feltool/internal/bootimg"
	"github.com/embeddedgo/feltools/feltool/internal/fel"
	"zappem.net/pub/debug/xcrc32"
)

var (
	ErrTooLarge    = errors.New("invalid image size")
	ErrVerify      = errors.New("verify failed")
	ErrUnsupported = errors.New("not supported")
)

// PollPeriod is the device presence polling period of WaitForDevice.
const PollPeriod = 100 * time.Millisecond

// progressUnit is the amount of data per progress step. It matches the
// size of a single FEL bulk transfer.
const progressUnit = 0x1_0000

// Observer receives the status and progress of long operations.
type Observer interface {
	Status(text string)
	Progress(done, total int64)
}

// Nop is an Observer that ignores everything.
type Nop struct{}

func (Nop) Status(string)         {}
func (Nop) Progress(int64, int64) {}

// Session is the part of *fel.Session used by Flasher.
type Session interface {
	WriteMemory(addr uint32, buf []byte, progress fel.ProgressFunc) error
	ReadMemory(addr, length uint32, progress fel.ProgressFunc) ([]byte, error)
	Exec(addr uint32) error
	WriteFlash(addr uint32, buf []byte, progress fel.ProgressFunc) error
	ReadFlash(addr, length uint32, progress fel.ProgressFunc) ([]byte, error)
	RunCommand(command string, noreturn bool, progress fel.ProgressFunc) error
	Close() error
}

// Flasher performs operations that need the fes1 and U-Boot images.
type Flasher struct {
	fes   []byte
	uboot []byte
	obs   Observer

	connect func() (Session, error)
	exists  func() bool
}

// New returns a Flasher that finds the device on bus. A nil obs is
// replaced with Nop.
func New(bus fel.Bus, fes, uboot []byte, obs Observer, opts ...fel.Option) *Flasher {
	if obs == nil {
		obs = Nop{}
	}
	f := &Flasher{fes: fes, uboot: uboot, obs: obs}
	f.connect = func() (Session, error) {
		s := fel.New(bus, opts...)
		s.SetFes1(f.fes)
		s.SetUBoot(f.uboot)
		if err := s.Open(fel.FEL); err != nil {
			return nil, err
		}
		return s, nil
	}
	f.exists = func() bool {
		return fel.New(bus, opts...).Exists()
	}
	return f
}

// counter converts the FEL progress callbacks into Observer calls. Every
// callback counts as one step, the count is clamped to max.
type counter struct {
	obs    Observer
	action fel.Action
	status string
	n, max int64
}

func (c *counter) progress(a fel.Action, _ string) {
	if a == c.action {
		c.obs.Status(c.status)
	}
	c.n++
	c.obs.Progress(min(c.n, c.max), c.max)
}

func sectorAlign(n int) int {
	return (n + fel.SectorSize - 1) / fel.SectorSize * fel.SectorSize
}

// padSectors returns buf extended with zeros (or truncated) to n rounded
// up to a multiple of the sector size.
func padSectors(buf []byte, n int) []byte {
	size := sectorAlign(n)
	if len(buf) == size {
		return buf
	}
	p := make([]byte, size)
	copy(p, buf)
	return p
}

// Memboot uploads the Android boot image to the DRAM scratch area and
// boots it. The device doesn't return to FEL.
func (f *Flasher) Memboot(image []byte) error {
	size, err := bootimg.ImageSize(image)
	if err != nil {
		return err
	}
	if size > uint64(len(image)) || size > fel.TransferMaxSize {
		return fmt.Errorf("%w: boot image %d", ErrTooLarge, size)
	}
	s, err := f.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	image = padSectors(image, int(size))
	c := &counter{
		obs:    f.obs,
		action: fel.WritingMemory,
		status: "Uploading boot image",
		max:    int64(len(image) / progressUnit),
	}
	if err = s.WriteMemory(fel.TransferBase, image, c.progress); err != nil {
		return err
	}
	return s.RunCommand(fmt.Sprintf("boota %x", fel.TransferBase), true, nil)
}

// FlashBoot writes the Android boot image to the kernel area of flash,
// verifies it and shuts the device down. Data past the size given by the
// image header is not written.
func (f *Flasher) FlashBoot(image []byte) error {
	size, err := bootimg.ImageSize(image)
	if err != nil {
		return err
	}
	if size > uint64(len(image)) || size > fel.KernelFlashMax {
		return fmt.Errorf("%w: boot image %d", ErrTooLarge, size)
	}
	image = padSectors(image, int(size))
	return f.flashAndShutdown(fel.KernelFlashBase, image, "boot image")
}

// FlashUboot writes the U-Boot image to flash, verifies it and shuts the
// device down. Flashing all U-Boot copies is not supported.
func (f *Flasher) FlashUboot(image []byte, all bool) error {
	if all {
		return fmt.Errorf("flashing all U-Boot copies: %w", ErrUnsupported)
	}
	if len(image) > fel.UBootFlashMax {
		return fmt.Errorf("%w: u-boot %d", ErrTooLarge, len(image))
	}
	return f.flashAndShutdown(fel.UBootFlashBase, image, "u-boot")
}

func (f *Flasher) flashAndShutdown(addr uint32, image []byte, what string) error {
	s, err := f.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	if err = f.writeFlash(s, addr, image, true, what); err != nil {
		return err
	}
	if err = s.RunCommand("shutdown", true, nil); err != nil {
		return err
	}
	f.obs.Progress(1, 1)
	return nil
}

// WriteFlash writes data to flash at addr. The data is padded with zeros
// to a whole number of sectors. With verify the written sectors are read
// back and compared. The what string names the data in status messages.
func (f *Flasher) WriteFlash(addr uint32, data []byte, verify bool, what string) error {
	s, err := f.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	return f.writeFlash(s, addr, data, verify, what)
}

func (f *Flasher) writeFlash(s Session, addr uint32, data []byte, verify bool, what string) error {
	data = padSectors(data, len(data))
	total := int64(len(data) / progressUnit)
	if verify {
		total *= 2
	}
	c := &counter{
		obs:    f.obs,
		action: fel.WritingMemory,
		status: "Writing " + what,
		max:    total,
	}
	if err := s.WriteFlash(addr, data, c.progress); err != nil {
		return err
	}
	if !verify {
		return nil
	}
	c.action, c.status = fel.ReadingMemory, "Reading "+what
	r, err := s.ReadFlash(addr, uint32(len(data)), c.progress)
	if err != nil {
		return err
	}
	_, want := xcrc32.NewCRC32(data)
	if len(r) < len(data) || !bytes.Equal(r[:len(data)], data) {
		_, got := xcrc32.NewCRC32(r)
		return fmt.Errorf(
			"%w for %s: crc32 0x%08x, read back 0x%08x",
			ErrVerify, what, want, got,
		)
	}
	f.obs.Status(fmt.Sprintf("Verified %s, crc32 0x%08x", what, want))
	return nil
}

// ReadFlash reads length bytes of flash at addr. Both must be multiples of
// the sector size.
func (f *Flasher) ReadFlash(addr, length uint32, what string) ([]byte, error) {
	s, err := f.connect()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	c := &counter{
		obs:    f.obs,
		action: fel.ReadingMemory,
		status: "Reading " + what,
		max:    int64(sectorAlign(int(length)) / progressUnit),
	}
	return s.ReadFlash(addr, length, c.progress)
}

// ReadMemory reads length bytes of the device memory at addr.
func (f *Flasher) ReadMemory(addr, length uint32) ([]byte, error) {
	s, err := f.connect()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	c := &counter{
		obs:    f.obs,
		action: fel.ReadingMemory,
		status: "Reading memory",
		max:    int64((length + progressUnit - 1) / progressUnit),
	}
	return s.ReadMemory(addr, length, c.progress)
}

// WriteMemory writes data to the device memory at addr and, if exec is
// true, jumps to addr.
func (f *Flasher) WriteMemory(addr uint32, data []byte, exec bool) error {
	s, err := f.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	c := &counter{
		obs:    f.obs,
		action: fel.WritingMemory,
		status: "Writing memory",
		max:    int64((len(data) + progressUnit - 1) / progressUnit),
	}
	if err = s.WriteMemory(addr, data, c.progress); err != nil {
		return err
	}
	if exec {
		return s.Exec(addr)
	}
	return nil
}

// RunCommand runs a U-Boot command. See fel.Session.RunCommand for the
// meaning of noreturn.
func (f *Flasher) RunCommand(command string, noreturn bool) error {
	s, err := f.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	f.obs.Status("Executing " + command)
	return s.RunCommand(command, noreturn, nil)
}

// WaitForDevice blocks until a device in FEL mode is connected or ctx is
// done.
func (f *Flasher) WaitForDevice(ctx context.Context) error {
	t := time.NewTicker(PollPeriod)
	defer t.Stop()
	for !f.exists() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
