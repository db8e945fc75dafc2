// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"

	"github.com/embeddedgo/feltools/feltool/internal/awusb"
)

// Burn mode handshake operations and their expected answers.
const (
	burnProbe    = 0
	burnExit     = 1
	burnEnterFEL = 2

	burnTag      = 0x4b485348
	burnRespSize = 32
)

var burnAnswers = [...]string{
	burnProbe:    "usb_update_probe_ok",
	burnExit:     "usb_update_exit",
	burnEnterFEL: "usb_update_efex",
}

// burnHandshake sends the handshake op and returns the answer. Any
// problem with the CSW gives ok == false, not an error.
func (s *Session) burnHandshake(op uint8) (answer string, ok bool, err error) {
	if s.dev == nil {
		return "", false, ErrNotOpen
	}
	if s.mode != Burn {
		return "", false, ErrWrongMode
	}
	cbw := awusb.CBW{
		Tag:     burnTag + uint32(op),
		DataLen: burnRespSize,
		Flags:   awusb.FlagIn,
		CBLen:   2,
	}
	cbw.CB[0], cbw.CB[1] = 0xf8, op
	if err = s.usbWrite(cbw.Append(s.reqBuf[:0])); err != nil {
		return
	}
	resp := make([]byte, burnRespSize)
	if err = s.usbRead(resp); err != nil {
		return
	}
	var b [awusb.CSWSize]byte
	if err = s.usbRead(b[:]); err != nil {
		return
	}
	csw, err := awusb.DecodeCSW(b[:])
	if err != nil {
		return
	}
	if csw.Signature != awusb.CSWSignature || csw.Tag != cbw.Tag || csw.Status != 0 {
		s.logf("burn handshake %d: bad CSW %+v", op, csw)
		return "", false, nil
	}
	return string(bytes.TrimRight(resp, "\x00")), true, nil
}

func (s *Session) burnCheck(op uint8) (bool, error) {
	answer, ok, err := s.burnHandshake(op)
	return ok && answer == burnAnswers[op], err
}

// BurnProbe reports whether a device in burn mode answers the probe.
func (s *Session) BurnProbe() (ok bool, err error) {
	defer wrapErr("BurnProbe", &err)
	return s.burnCheck(burnProbe)
}

// BurnExit asks a device in burn mode to leave it.
func (s *Session) BurnExit() (ok bool, err error) {
	defer wrapErr("BurnExit", &err)
	return s.burnCheck(burnExit)
}

// BurnEnterFEL asks a device in burn mode to switch to FEL mode.
func (s *Session) BurnEnterFEL() (ok bool, err error) {
	defer wrapErr("BurnEnterFEL", &err)
	return s.burnCheck(burnEnterFEL)
}
