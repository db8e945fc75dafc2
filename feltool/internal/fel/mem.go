// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"
	"time"

	"github.com/embeddedgo/feltools/feltool/internal/awusb"
)

// VerifyDevice asks the boot ROM for its identity. A failed read of the
// identity itself is reported as a zeroed DeviceInfo but a failed status
// read is an error.
func (s *Session) VerifyDevice() (info awusb.DeviceInfo, err error) {
	defer wrapErr("VerifyDevice", &err)
	return s.verifyDevice()
}

func (s *Session) verifyDevice() (info awusb.DeviceInfo, err error) {
	m := awusb.Message{Cmd: awusb.VerifyDevice}
	if err = s.awWrite(m.Append(s.msgBuf[:0])); err != nil {
		return
	}
	b, err := s.awRead(awusb.VerifySize)
	if err != nil {
		s.logf("verify device: %v", err)
		b = make([]byte, awusb.VerifySize)
	}
	if err = s.felStatus(awusb.VerifyDevice); err != nil {
		return
	}
	return awusb.DecodeDeviceInfo(b)
}

// WriteMemory writes buf to the device memory at addr. Writes to DRAM
// initialize it first. The length of buf is padded with zeros to a
// multiple of 4. A failed chunk aborts the write; chunks already written
// stay in place.
func (s *Session) WriteMemory(addr uint32, buf []byte, progress ProgressFunc) (err error) {
	defer wrapErr("WriteMemory", &err)
	return s.writeMemory(addr, buf, progress)
}

func (s *Session) writeMemory(addr uint32, buf []byte, progress ProgressFunc) error {
	if err := s.checkFEL(); err != nil {
		return err
	}
	if addr >= DRAMBase {
		if err := s.initDRAM(false); err != nil {
			return err
		}
	}
	if n := len(buf); n&3 != 0 {
		padded := make([]byte, (n+3)&^3)
		copy(padded, buf)
		buf = padded
	}
	for pos := 0; pos < len(buf); pos += MaxBulkSize {
		chunk := buf[pos:min(pos+MaxBulkSize, len(buf))]
		progress.call(WritingMemory, "")
		a := addr + uint32(pos)
		if err := s.felRequest(awusb.Download, a, uint32(len(chunk))); err != nil {
			return err
		}
		if err := s.awWrite(chunk); err != nil {
			return err
		}
		if err := s.felStatus(awusb.Download); err != nil {
			return err
		}
	}
	return nil
}

// ReadMemory reads length bytes of the device memory at addr. Reads from
// DRAM initialize it first. The length is rounded up to a multiple of 4
// and the returned slice has the rounded length.
func (s *Session) ReadMemory(addr, length uint32, progress ProgressFunc) (data []byte, err error) {
	defer wrapErr("ReadMemory", &err)
	return s.readMemory(addr, length, progress)
}

func (s *Session) readMemory(addr, length uint32, progress ProgressFunc) ([]byte, error) {
	if err := s.checkFEL(); err != nil {
		return nil, err
	}
	if addr >= DRAMBase {
		if err := s.initDRAM(false); err != nil {
			return nil, err
		}
	}
	length = (length + 3) &^ 3
	data := make([]byte, 0, length)
	for length > 0 {
		progress.call(ReadingMemory, "")
		n := min(length, MaxBulkSize)
		if err := s.felRequest(awusb.Upload, addr, n); err != nil {
			return nil, err
		}
		b, err := s.awRead(n)
		if err != nil {
			return nil, err
		}
		if err := s.felStatus(awusb.Upload); err != nil {
			return nil, err
		}
		data = append(data, b...)
		length -= n
		addr += n
	}
	return data, nil
}

// Exec starts the code at addr.
func (s *Session) Exec(addr uint32) (err error) {
	defer wrapErr("Exec", &err)
	return s.exec(addr)
}

func (s *Session) exec(addr uint32) error {
	if err := s.felRequest(awusb.Run, addr, 0); err != nil {
		return err
	}
	return s.felStatus(awusb.Run)
}

// InitDRAM makes sure DRAM is usable. If fes1 is already resident (it was
// run earlier and the device was not reset) it is not uploaded again.
// Otherwise fes1 is uploaded, started and given DRAMInitDelay to finish.
// Without force InitDRAM does nothing once DRAM was initialized in this
// session.
func (s *Session) InitDRAM(force bool) (err error) {
	defer wrapErr("InitDRAM", &err)
	return s.initDRAM(force)
}

func (s *Session) initDRAM(force bool) error {
	if s.dramReady && !force {
		return nil
	}
	if len(s.fes1) < fes1TestSize {
		return ErrBadFes1
	}
	tail := s.fes1[len(s.fes1)-fes1TestSize:]
	b, err := s.readMemory(Fes1Base+uint32(len(s.fes1)-fes1TestSize), fes1TestSize, nil)
	if err != nil {
		return err
	}
	if bytes.Equal(b, tail) {
		s.logf("fes1 already resident")
		s.dramReady = true
		return nil
	}
	if err := s.writeMemory(Fes1Base, s.fes1, nil); err != nil {
		return err
	}
	if err := s.exec(Fes1Base); err != nil {
		return err
	}
	time.Sleep(s.cfg.DRAMInitDelay)
	s.dramReady = true
	return nil
}
