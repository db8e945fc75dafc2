// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"fmt"

	"github.com/embeddedgo/feltools/feltool/internal/awusb"
)

// usbWrite writes the whole p, one transfer at a time.
func (s *Session) usbWrite(p []byte) error {
	if s.dev == nil {
		return ErrNotOpen
	}
	s.logf("-> %d bytes", len(p))
	for len(p) > 0 {
		n, err := s.dev.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// usbRead fills the whole p, one transfer at a time.
func (s *Session) usbRead(p []byte) error {
	if s.dev == nil {
		return ErrNotOpen
	}
	for pos := 0; pos < len(p); {
		n, err := s.dev.Read(p[pos:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortRead
		}
		pos += n
	}
	s.logf("<- %d bytes", len(p))
	return nil
}

func (s *Session) checkFEL() error {
	if s.dev == nil {
		return ErrNotOpen
	}
	if s.mode != FEL {
		return ErrWrongMode
	}
	return nil
}

func (s *Session) awStatus(what string) error {
	var b [awusb.ResponseSize]byte
	if err := s.usbRead(b[:]); err != nil {
		return err
	}
	resp, err := awusb.DecodeResponse(b[:])
	if err != nil {
		return err
	}
	if resp.Status != 0 {
		return fmt.Errorf("%w: %s: AWUS status %d", ErrStatus, what, resp.Status)
	}
	return nil
}

// awWrite sends p inside the AWUC/AWUS envelope.
func (s *Session) awWrite(p []byte) error {
	if err := s.checkFEL(); err != nil {
		return err
	}
	req := awusb.Request{Len: uint32(len(p)), Cmd: awusb.Write}
	if err := s.usbWrite(req.Append(s.reqBuf[:0])); err != nil {
		return err
	}
	if err := s.usbWrite(p); err != nil {
		return err
	}
	return s.awStatus("write")
}

// awRead reads n bytes inside the AWUC/AWUS envelope.
func (s *Session) awRead(n uint32) ([]byte, error) {
	if err := s.checkFEL(); err != nil {
		return nil, err
	}
	req := awusb.Request{Len: n, Cmd: awusb.Read}
	if err := s.usbWrite(req.Append(s.reqBuf[:0])); err != nil {
		return nil, err
	}
	p := make([]byte, n)
	if err := s.usbRead(p); err != nil {
		return nil, err
	}
	return p, s.awStatus("read")
}

func (s *Session) felRequest(cmd awusb.Cmd, addr, length uint32) error {
	m := awusb.Message{Cmd: cmd, Addr: addr, Len: length}
	return s.awWrite(m.Append(s.msgBuf[:0]))
}

// felStatus reads the status that ends the cmd transaction.
func (s *Session) felStatus(cmd awusb.Cmd) error {
	b, err := s.awRead(awusb.StatusSize)
	if err != nil {
		return err
	}
	st, err := awusb.DecodeStatus(b)
	if err != nil {
		return err
	}
	if st.State != 0 {
		return fmt.Errorf("%w: FEL %s: state %d", ErrStatus, cmd, st.State)
	}
	return nil
}
