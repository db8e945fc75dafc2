// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/embeddedgo/feltools/feltool/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"zappem.net/pub/debug/xcrc32"
)

var readOpts struct {
	output string
	hex    bool
}

var writeOpts struct {
	noVerify bool
	what     string
}

func addOutputFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&readOpts.output, "output", "o", "-", "output file, - prints a hex dump")
	fs.BoolVar(&readOpts.hex, "hex", false, "write the output in the Intel HEX format")
}

func writeOutput(addr uint32, data []byte) error {
	if err := util.WriteImage(readOpts.output, addr, data, readOpts.hex); err != nil {
		return err
	}
	if readOpts.output != "-" {
		_, crc := xcrc32.NewCRC32(data)
		fmt.Fprintf(os.Stderr, "%d bytes written to %s, crc32 0x%08x\n", len(data), readOpts.output, crc)
	}
	return nil
}

var readFlashCmd = &cobra.Command{
	Use:   "read-flash ADDR LENGTH",
	Short: "read raw flash sectors",
	Long: `Read-flash reads LENGTH bytes of flash at ADDR. Both must be multiples
of the 128 KiB sector size.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseUint32("address", args[0])
		if err != nil {
			return err
		}
		length, err := parseUint32("length", args[1])
		if err != nil {
			return err
		}
		f, err := newFlasher()
		if err != nil {
			return err
		}
		data, err := f.ReadFlash(addr, length, "NAND")
		if err != nil {
			return err
		}
		return writeOutput(addr, data)
	},
}

var writeFlashCmd = &cobra.Command{
	Use:   "write-flash FILE [ADDR]",
	Short: "write raw flash sectors",
	Long: `Write-flash writes the content of FILE to flash at ADDR. ADDR must be a
multiple of the 128 KiB sector size, the data is padded with zeros to
whole sectors. ADDR may be omitted for Intel HEX files, the lowest address
in the file is used then.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, addr, err := util.LoadImage(args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			hexAddr := addr
			if addr, err = parseUint32("address", args[1]); err != nil {
				return err
			}
			if util.IsHex(args[0]) && addr != hexAddr {
				util.Warn("%s: loaded at 0x%08x instead of 0x%08x", args[0], addr, hexAddr)
			}
		} else if !util.IsHex(args[0]) {
			return errors.New("ADDR is required for binary files")
		}
		f, err := newFlasher()
		if err != nil {
			return err
		}
		return f.WriteFlash(addr, data, !writeOpts.noVerify, writeOpts.what)
	},
}

func init() {
	addOutputFlags(readFlashCmd.Flags())
	fs := writeFlashCmd.Flags()
	fs.BoolVar(&writeOpts.noVerify, "no-verify", false, "don't read back the written sectors")
	fs.StringVar(&writeOpts.what, "what", "NAND", "name of the data in status messages")

	rootCmd.AddCommand(readFlashCmd, writeFlashCmd)
}
