// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fel talks to the boot ROM of Allwinner SoCs in the FEL (USB boot)
// mode. A Session can read, write and execute device memory, bring up DRAM
// using a stage-1 (fes1) binary, run U-Boot shell commands by patching the
// bootcmd variable of a resident U-Boot image and, through those commands,
// read and write raw flash sectors.
//
// A Session is not safe for concurrent use.
package fel

import (
	"errors"
	"fmt"

	"github.com/embeddedgo/feltools/feltool/internal/usbdev"
)

// Address space of the supported chip family.
const (
	DRAMBase        = 0x4000_0000
	Fes1Base        = 0x2000
	UBootBase       = DRAMBase + 0x700_0000 // U-Boot load address in DRAM
	SectorSize      = 0x2_0000
	UBootFlashBase  = 0x10_0000
	UBootFlashMax   = SectorSize * 0x10
	KernelFlashBase = SectorSize * 0x30
	KernelFlashMax  = SectorSize * 0x20
	TransferBase    = DRAMBase + 0x740_0000 // DRAM scratch used for flash I/O
	TransferMaxSize = SectorSize * 0x100
	MaxBulkSize     = 0x1_0000
)

// USB identity of a device in FEL mode.
const (
	VendorID  = 0x1f3a
	ProductID = 0xefe8
	BoardID   = 0x0016_6700
)

// Endpoint addresses required in each mode.
const (
	FELIn   = 0x82
	FELOut  = 0x01
	BurnIn  = 0x81
	BurnOut = 0x02
)

const (
	fes1TestSize  = 0x80
	ubootTestSize = 0x20
	cmdMarker     = "bootcmd="
)

var (
	ErrNotFound         = usbdev.ErrNotFound
	ErrEndpointMismatch = errors.New("unexpected endpoints (wrong device or mode)")
	ErrIdentityMismatch = errors.New("invalid board ID")
	ErrNotOpen          = errors.New("not connected")
	ErrWrongMode        = errors.New("operation not allowed in this mode")
	ErrStatus           = errors.New("device reported an error")
	ErrShortWrite       = errors.New("can't write to USB")
	ErrShortRead        = errors.New("no data read from USB")
	ErrBadFes1          = errors.New("can't init DRAM, incorrect fes1 binary")
	ErrBadUBoot         = errors.New("can't init U-Boot, incorrect U-Boot binary")
	ErrNoCommandVar     = errors.New("invalid U-Boot binary, command variable not found")
	ErrFlashAlign       = errors.New("invalid flash address/length")
	ErrNoAnswer         = errors.New("no answer from device")
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "fel: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// Mode selects the USB personality the device is expected to have.
type Mode int

const (
	FEL  Mode = iota // boot ROM FEL mode
	Burn             // mass-storage like burn mode
)

func (m Mode) String() string {
	if m == Burn {
		return "burn"
	}
	return "FEL"
}

func (m Mode) endpoints() (in, out uint8) {
	if m == Burn {
		return BurnIn, BurnOut
	}
	return FELIn, FELOut
}

// Action tells a ProgressFunc what the session is doing.
type Action int

const (
	RunningCommand Action = iota
	ReadingMemory
	WritingMemory
)

func (a Action) String() string {
	switch a {
	case RunningCommand:
		return "running command"
	case ReadingMemory:
		return "reading memory"
	case WritingMemory:
		return "writing memory"
	}
	return fmt.Sprintf("action %d", int(a))
}

// ProgressFunc is called before every chunk transfer and once per settle
// tick while waiting for a rebooted device. Command is set only for
// RunningCommand. A nil ProgressFunc is valid.
type ProgressFunc func(a Action, command string)

func (f ProgressFunc) call(a Action, command string) {
	if f != nil {
		f(a, command)
	}
}
