// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"strings"

	"github.com/embeddedgo/feltools/feltool/internal/util"
	"github.com/spf13/cobra"
)

var readMemCmd = &cobra.Command{
	Use:   "read-mem ADDR LENGTH",
	Short: "read device memory",
	Args:  cobra.ExactArgs(2),
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
		data, err := f.ReadMemory(addr, length)
		if err != nil {
			return err
		}
		return writeOutput(addr, data)
	},
}

var jump bool

var writeMemCmd = &cobra.Command{
	Use:   "write-mem ADDR FILE",
	Short: "write device memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseUint32("address", args[0])
		if err != nil {
			return err
		}
		data, _, err := util.LoadImage(args[1])
		if err != nil {
			return err
		}
		f, err := newFlasher()
		if err != nil {
			return err
		}
		return f.WriteMemory(addr, data, jump)
	},
}

var noreturn bool

var execCmd = &cobra.Command{
	Use:   "exec COMMAND...",
	Short: "run a U-Boot command",
	Long: `Exec runs a U-Boot shell command. Unless --noreturn is given the command
is expected to drop the USB connection (reboot, efex_test) and feltool
waits for the device to come back in FEL mode.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFlasher()
		if err != nil {
			return err
		}
		return f.RunCommand(strings.Join(args, " "), noreturn)
	},
}

func init() {
	addOutputFlags(readMemCmd.Flags())
	writeMemCmd.Flags().BoolVarP(&jump, "jump", "j", false, "start the written code")
	execCmd.Flags().BoolVarP(&noreturn, "noreturn", "n", false, "don't wait for the device to reconnect")
	rootCmd.AddCommand(readMemCmd, writeMemCmd, execCmd)
}
