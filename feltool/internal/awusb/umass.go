// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package awusb

import "encoding/binary"

// Bulk-Only-Transport frames used by the burn mode.

const (
	CBWSignature uint32 = 0x43425355 // "USBC"
	CSWSignature uint32 = 0x53425355 // "USBS"

	CBWSize = 31
	CSWSize = 13

	FlagIn uint8 = 0x80
)

// CBW is the command block wrapper.
type CBW struct {
	Tag     uint32
	DataLen uint32
	Flags   uint8
	LUN     uint8
	CBLen   uint8
	CB      [16]byte
}

// Append appends the 31-byte encoding of c to buf.
func (c *CBW) Append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint32(buf, CBWSignature)
	buf = le.AppendUint32(buf, c.Tag)
	buf = le.AppendUint32(buf, c.DataLen)
	buf = append(buf, c.Flags, c.LUN, c.CBLen)
	return append(buf, c.CB[:]...)
}

func DecodeCBW(b []byte) (c CBW, err error) {
	if len(b) < CBWSize {
		return c, ErrShortFrame
	}
	le := binary.LittleEndian
	if le.Uint32(b) != CBWSignature {
		return c, ErrSignature
	}
	c.Tag = le.Uint32(b[4:])
	c.DataLen = le.Uint32(b[8:])
	c.Flags = b[12]
	c.LUN = b[13]
	c.CBLen = b[14]
	copy(c.CB[:], b[15:])
	return c, nil
}

// CSW is the command status wrapper. The signature is kept as received so
// the caller decides what a mismatch means.
type CSW struct {
	Signature uint32
	Tag       uint32
	Residue   uint32
	Status    uint8
}

func DecodeCSW(b []byte) (c CSW, err error) {
	if len(b) < CSWSize {
		return c, ErrShortFrame
	}
	le := binary.LittleEndian
	c.Signature = le.Uint32(b)
	c.Tag = le.Uint32(b[4:])
	c.Residue = le.Uint32(b[8:])
	c.Status = b[12]
	return c, nil
}

func (c *CSW) Append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint32(buf, c.Signature)
	buf = le.AppendUint32(buf, c.Tag)
	buf = le.AppendUint32(buf, c.Residue)
	return append(buf, c.Status)
}
