// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"cmp"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/marcinbor85/gohex"
	"zappem.net/pub/debug/xxd"
)

// IsHex reports whether name looks like an Intel HEX file.
func IsHex(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hex", ".ihex", ".ihx":
		return true
	}
	return false
}

// LoadImage reads a binary or Intel HEX file. For a HEX file the segments
// are flattened into one buffer starting at the lowest segment address
// (returned as addr), the gaps are filled with 0xff. For a binary file
// addr is 0.
func LoadImage(name string) (data []byte, addr uint32, err error) {
	if !IsHex(name) {
		data, err = os.ReadFile(name)
		return
	}
	f, err := os.Open(name)
	if err != nil {
		return
	}
	defer f.Close()
	mem := gohex.NewMemory()
	if err = mem.ParseIntelHex(f); err != nil {
		return
	}
	segs := mem.GetDataSegments()
	if len(segs) == 0 {
		return nil, 0, errors.New(name + ": no data")
	}
	slices.SortFunc(segs, func(a, b gohex.DataSegment) int {
		return cmp.Compare(a.Address, b.Address)
	})
	addr = segs[0].Address
	var pad []byte
	for _, seg := range segs {
		if gap := int(seg.Address-addr) - len(data); gap > 0 {
			data = append(data, PadBytes(&pad, gap, 0xff)...)
		}
		data = append(data, seg.Data...)
	}
	return data, addr, nil
}

// WriteImage writes data read from addr to the named file. The name "-"
// prints a hex dump to the standard output. With hex the file is written
// in the Intel HEX format.
func WriteImage(name string, addr uint32, data []byte, hex bool) error {
	if name == "-" {
		xxd.Print(int(addr), data)
		return nil
	}
	if !hex {
		return os.WriteFile(name, data, 0o644)
	}
	w, err := os.Create(name)
	if err != nil {
		return err
	}
	mem := gohex.NewMemory()
	if err = mem.AddBinary(addr, data); err != nil {
		w.Close()
		return err
	}
	if err = mem.DumpIntelHex(w, 16); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
