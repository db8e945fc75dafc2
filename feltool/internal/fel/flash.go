// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import "fmt"

func checkFlashRange(addr, length uint32) error {
	if addr%SectorSize != 0 {
		return fmt.Errorf("%w: address 0x%08x", ErrFlashAlign, addr)
	}
	if length%SectorSize != 0 {
		return fmt.Errorf("%w: length 0x%08x", ErrFlashAlign, length)
	}
	return nil
}

func (s *Session) flashCommand(op string, addr, length uint32) string {
	return fmt.Sprintf(
		"sunxi_flash %s %x %x %x;%s",
		op, TransferBase, addr/SectorSize, length/SectorSize, s.cfg.FlashSuffix,
	)
}

// ReadFlash reads length bytes of flash at addr. Both must be multiples of
// SectorSize. Every TransferMaxSize bytes U-Boot copies the sectors to the
// DRAM scratch area, returns to FEL and the data is read from there.
func (s *Session) ReadFlash(addr, length uint32, progress ProgressFunc) (data []byte, err error) {
	defer wrapErr("ReadFlash", &err)
	if err = checkFlashRange(addr, length); err != nil {
		return
	}
	data = make([]byte, 0, length)
	for length > 0 {
		n := min(length, TransferMaxSize)
		if err = s.runCommand(s.flashCommand("phy_read", addr, n), false, progress); err != nil {
			return nil, err
		}
		b, err := s.readMemory(TransferBase+addr%SectorSize, n, progress)
		if err != nil {
			return nil, err
		}
		data = append(data, b...)
		n = min(uint32(len(b)), length)
		addr += n
		length -= n
	}
	return data, nil
}

// WriteFlash writes buf to flash at addr. Both addr and len(buf) must be
// multiples of SectorSize, WriteFlash doesn't pad. The data goes through
// the DRAM scratch area in chunks of TransferMaxSize/8 bytes.
func (s *Session) WriteFlash(addr uint32, buf []byte, progress ProgressFunc) (err error) {
	defer wrapErr("WriteFlash", &err)
	if err = checkFlashRange(addr, uint32(len(buf))); err != nil {
		return
	}
	const chunkSize = TransferMaxSize / 8
	for len(buf) > 0 {
		chunk := buf[:min(len(buf), chunkSize)]
		if err = s.writeMemory(TransferBase, chunk, progress); err != nil {
			return
		}
		n := uint32(len(chunk))
		if err = s.runCommand(s.flashCommand("phy_write", addr, n), false, progress); err != nil {
			return
		}
		addr += n
		buf = buf[n:]
	}
	return nil
}
