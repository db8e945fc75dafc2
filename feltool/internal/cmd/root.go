// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cmd implements the feltool command line.
package cmd

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/embeddedgo/feltools/feltool/internal/fel"
	"github.com/embeddedgo/feltools/feltool/internal/flasher"
	"github.com/embeddedgo/feltools/feltool/internal/util"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "feltool",
	Short: "Allwinner FEL mode flasher",
	Long: `Feltool talks to Allwinner SoCs in the FEL (USB boot) mode. It can boot
an Android boot image from RAM, flash boot images and U-Boot, read and
write raw flash and run U-Boot commands. Most commands need the fes1
(DRAM init) and U-Boot binaries for the device, see --fes and --uboot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Make glog see its flags as parsed.
		flag.CommandLine.Parse(nil)
		util.Quiet = flags.quiet
	},
}

var flags struct {
	vid, pid uint16
	timeout  time.Duration
	attempts int
	delay    time.Duration
	fes      string
	uboot    string
	quiet    bool
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Uint16Var(&flags.vid, "vid", fel.VendorID, "USB vendor ID of the device")
	pf.Uint16Var(&flags.pid, "pid", fel.ProductID, "USB product ID of the device")
	pf.DurationVar(&flags.timeout, "timeout", fel.DefaultTimeout, "timeout of a single USB transfer")
	pf.IntVar(&flags.attempts, "reconnect-attempts", fel.DefaultReconnectAttempts, "number of attempts to reconnect after the device reboots")
	pf.DurationVar(&flags.delay, "reconnect-delay", fel.DefaultReconnectDelay, "delay between reconnect attempts")
	pf.StringVarP(&flags.fes, "fes", "f", "", "fes1 (DRAM init) binary")
	pf.StringVarP(&flags.uboot, "uboot", "u", "", "U-Boot binary")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "don't show the progress bar")
	pf.AddGoFlagSet(flag.CommandLine)
}

// Execute runs the command selected by the program arguments.
func Execute() {
	defer glog.Flush()
	util.FatalErr("feltool", rootCmd.Execute())
}

func options() []fel.Option {
	return []fel.Option{
		fel.WithIDs(flags.vid, flags.pid),
		fel.WithTimeout(flags.timeout),
		fel.WithReconnect(flags.attempts, flags.delay),
		fel.WithLog(func(msg string) {
			glog.V(2).Info(msg)
		}),
	}
}

func loadImage(flagName, name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("--%s is required", flagName)
	}
	data, _, err := util.LoadImage(name)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("%s: %d bytes", name, len(data))
	return data, nil
}

// newFlasher loads the fes1 and U-Boot images and returns a Flasher that
// reports to the terminal.
func newFlasher() (*flasher.Flasher, error) {
	fes, err := loadImage("fes", flags.fes)
	if err != nil {
		return nil, err
	}
	uboot, err := loadImage("uboot", flags.uboot)
	if err != nil {
		return nil, err
	}
	return flasher.New(fel.USB{}, fes, uboot, new(observer), options()...), nil
}

// observer prints the status of long operations to the log and draws the
// progress bar.
type observer struct {
	status string
}

func (o *observer) Status(text string) {
	if text != o.status {
		glog.V(1).Info(text)
		o.status = text
	}
}

func (o *observer) Progress(done, total int64) {
	util.Progress(o.status, int(done), int(total), 1, "x64KiB")
}

func parseUint32(what, s string) (uint32, error) {
	u, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", what, s, err)
	}
	return uint32(u), nil
}
