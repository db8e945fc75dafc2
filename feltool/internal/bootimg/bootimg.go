// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bootimg decodes the header of Android boot images.
package bootimg

import (
	"encoding/binary"
	"errors"
)

const Magic = "ANDROID!"

// HeaderSize is the number of header bytes decoded by Decode.
const HeaderSize = 44

var (
	ErrBadMagic = errors.New("bootimg: invalid header")
	ErrShort    = errors.New("bootimg: header too short")
	ErrPageSize = errors.New("bootimg: zero page size")
)

// Header contains the fields of the boot image header needed to compute
// the image size.
type Header struct {
	KernelSize  uint32
	KernelAddr  uint32
	RamdiskSize uint32
	RamdiskAddr uint32
	SecondSize  uint32
	SecondAddr  uint32
	TagsAddr    uint32
	PageSize    uint32
	DTSize      uint32
}

// Decode decodes the boot image header at the beginning of b.
func Decode(b []byte) (h Header, err error) {
	if len(b) < len(Magic) || string(b[:len(Magic)]) != Magic {
		return h, ErrBadMagic
	}
	if len(b) < HeaderSize {
		return h, ErrShort
	}
	le := binary.LittleEndian
	h.KernelSize = le.Uint32(b[8:])
	h.KernelAddr = le.Uint32(b[12:])
	h.RamdiskSize = le.Uint32(b[16:])
	h.RamdiskAddr = le.Uint32(b[20:])
	h.SecondSize = le.Uint32(b[24:])
	h.SecondAddr = le.Uint32(b[28:])
	h.TagsAddr = le.Uint32(b[32:])
	h.PageSize = le.Uint32(b[36:])
	h.DTSize = le.Uint32(b[40:])
	return h, nil
}

// Pages returns the number of pages occupied by the image: one for the
// header and enough for each of the kernel, ramdisk, second stage and
// device tree.
func (h *Header) Pages() uint64 {
	n := uint64(1)
	ps := uint64(h.PageSize)
	for _, size := range [...]uint32{h.KernelSize, h.RamdiskSize, h.SecondSize, h.DTSize} {
		n += (uint64(size) + ps - 1) / ps
	}
	return n
}

// Size returns the size of the whole image in bytes.
func (h *Header) Size() (uint64, error) {
	if h.PageSize == 0 {
		return 0, ErrPageSize
	}
	return h.Pages() * uint64(h.PageSize), nil
}

// ImageSize decodes the header at the beginning of b and returns the size
// of the whole boot image. It doesn't check the size against len(b).
func ImageSize(b []byte) (uint64, error) {
	h, err := Decode(b)
	if err != nil {
		return 0, err
	}
	return h.Size()
}
