// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package awusb

import "encoding/binary"

// FEL commands
type Cmd uint16

const (
	VerifyDevice Cmd = 0x001
	SwitchRole   Cmd = 0x002
	IsReady      Cmd = 0x003
	GetCmdSetVer Cmd = 0x004
	Disconnect   Cmd = 0x010
	Download     Cmd = 0x101
	Run          Cmd = 0x102
	Upload       Cmd = 0x103
)

var cmdStr = map[Cmd]string{
	VerifyDevice: "verify device",
	SwitchRole:   "switch role",
	IsReady:      "is ready",
	GetCmdSetVer: "get cmd set version",
	Disconnect:   "disconnect",
	Download:     "download",
	Run:          "run",
	Upload:       "upload",
}

func (c Cmd) String() string {
	if s, ok := cmdStr[c]; ok {
		return s
	}
	return "FEL command " + hex(uint64(c))
}

const (
	MessageSize = 16
	StatusSize  = 8
	VerifySize  = 32
)

// Message is a FEL command. Plain commands (VerifyDevice, IsReady, ...)
// leave Addr, Len and Flags zero and are encoded the same way as the
// standard request: cmd, tag and twelve zero bytes.
type Message struct {
	Cmd   Cmd
	Tag   uint16
	Addr  uint32
	Len   uint32
	Flags uint32
}

// Append appends the 16-byte encoding of m to buf.
func (m *Message) Append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint16(buf, uint16(m.Cmd))
	buf = le.AppendUint16(buf, m.Tag)
	buf = le.AppendUint32(buf, m.Addr)
	buf = le.AppendUint32(buf, m.Len)
	return le.AppendUint32(buf, m.Flags)
}

// DecodeMessage decodes a 16-byte FEL command.
func DecodeMessage(b []byte) (m Message, err error) {
	if len(b) < MessageSize {
		return m, ErrShortFrame
	}
	le := binary.LittleEndian
	m.Cmd = Cmd(le.Uint16(b))
	m.Tag = le.Uint16(b[2:])
	m.Addr = le.Uint32(b[4:])
	m.Len = le.Uint32(b[8:])
	m.Flags = le.Uint32(b[12:])
	return m, nil
}

// Status is the 8-byte FEL status that follows every FEL command. A
// non-zero State reports a failed command.
type Status struct {
	Mark  uint16
	Tag   uint16
	State uint8
}

func DecodeStatus(b []byte) (s Status, err error) {
	if len(b) < StatusSize {
		return s, ErrShortFrame
	}
	le := binary.LittleEndian
	s.Mark = le.Uint16(b)
	s.Tag = le.Uint16(b[2:])
	s.State = b[4]
	return s, nil
}

func (s *Status) Append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint16(buf, s.Mark)
	buf = le.AppendUint16(buf, s.Tag)
	return append(buf, s.State, 0, 0, 0)
}

// DeviceInfo is the response to VerifyDevice.
type DeviceInfo struct {
	Magic         [8]byte // "AWUSBFEX"
	Board         uint32
	FW            uint32
	Mode          uint16
	DataFlag      uint8
	DataLength    uint8
	DataStartAddr uint32
	Raw           [VerifySize]byte
}

// DecodeDeviceInfo decodes the 32-byte VerifyDevice response. It does not
// check the magic: a zeroed buffer decodes to a zero board id.
func DecodeDeviceInfo(b []byte) (d DeviceInfo, err error) {
	if len(b) < VerifySize {
		return d, ErrShortFrame
	}
	le := binary.LittleEndian
	copy(d.Raw[:], b)
	copy(d.Magic[:], b)
	d.Board = le.Uint32(b[8:])
	d.FW = le.Uint32(b[12:])
	d.Mode = le.Uint16(b[16:])
	d.DataFlag = b[18]
	d.DataLength = b[19]
	d.DataStartAddr = le.Uint32(b[20:])
	return d, nil
}

// Append appends the 32-byte encoding of d (Raw is ignored) to buf.
func (d *DeviceInfo) Append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = append(buf, d.Magic[:]...)
	buf = le.AppendUint32(buf, d.Board)
	buf = le.AppendUint32(buf, d.FW)
	buf = le.AppendUint16(buf, d.Mode)
	buf = append(buf, d.DataFlag, d.DataLength)
	buf = le.AppendUint32(buf, d.DataStartAddr)
	return append(buf, make([]byte, 8)...)
}
