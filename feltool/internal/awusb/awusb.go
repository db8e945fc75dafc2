// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package awusb implements the wire frames used to talk to the boot ROM of
// Allwinner SoCs: the AWUC/AWUS bulk envelope, the FEL command set carried
// inside it and the Bulk-Only-Transport frames of the burn mode.
//
// All frames are little-endian and have a fixed size. Encoders append to
// the provided buffer, decoders check the length and never retain the
// input slice.
package awusb

import (
	"encoding/binary"
	"errors"
	"strconv"
)

var (
	ErrShortFrame = errors.New("awusb: frame too short")
	ErrSignature  = errors.New("awusb: bad frame signature")
)

// Bulk envelope request types.
const (
	Read  uint8 = 0x11
	Write uint8 = 0x12
)

const (
	RequestSize  = 32 // AWUC request
	ResponseSize = 13 // AWUS response
)

const cmdLen = 0x0c

var (
	requestSig  = [4]byte{'A', 'W', 'U', 'C'}
	responseSig = [4]byte{'A', 'W', 'U', 'S'}
)

// Request announces a raw bulk read or write of Len bytes.
type Request struct {
	Tag uint32
	Len uint32
	Cmd uint8 // Read or Write
}

// Append appends the 32-byte AWUC encoding of r to buf.
func (r *Request) Append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = append(buf, requestSig[:]...)
	buf = le.AppendUint32(buf, r.Tag)
	buf = le.AppendUint32(buf, r.Len)
	buf = append(buf, 0, 0, 0, cmdLen)
	buf = append(buf, r.Cmd, 0)
	buf = le.AppendUint32(buf, r.Len)
	return append(buf, make([]byte, 10)...)
}

// Response is the AWUS status that closes every bulk read or write.
type Response struct {
	Tag     uint32
	Residue uint32
	Status  uint8
}

// DecodeResponse decodes the 13-byte AWUS response.
func DecodeResponse(b []byte) (r Response, err error) {
	if len(b) < ResponseSize {
		return r, ErrShortFrame
	}
	if [4]byte(b[:4]) != responseSig {
		return r, ErrSignature
	}
	le := binary.LittleEndian
	r.Tag = le.Uint32(b[4:])
	r.Residue = le.Uint32(b[8:])
	r.Status = b[12]
	return r, nil
}

// AppendResponse appends the AWUS encoding of r to buf.
func AppendResponse(buf []byte, r Response) []byte {
	le := binary.LittleEndian
	buf = append(buf, responseSig[:]...)
	buf = le.AppendUint32(buf, r.Tag)
	buf = le.AppendUint32(buf, r.Residue)
	return append(buf, r.Status)
}

// DecodeRequest decodes the 32-byte AWUC request.
func DecodeRequest(b []byte) (r Request, err error) {
	if len(b) < RequestSize {
		return r, ErrShortFrame
	}
	if [4]byte(b[:4]) != requestSig {
		return r, ErrSignature
	}
	le := binary.LittleEndian
	r.Tag = le.Uint32(b[4:])
	r.Len = le.Uint32(b[8:])
	r.Cmd = b[16]
	return r, nil
}

func hex(u uint64) string {
	return "0x" + strconv.FormatUint(u, 16)
}
