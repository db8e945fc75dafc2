// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var membootCmd = &cobra.Command{
	Use:   "memboot BOOT_IMAGE",
	Short: "boot an Android boot image from RAM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFlasher()
		if err != nil {
			return err
		}
		image, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return f.Memboot(image)
	},
}

var flashBootCmd = &cobra.Command{
	Use:   "flash-boot BOOT_IMAGE",
	Short: "flash the Android boot image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFlasher()
		if err != nil {
			return err
		}
		image, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return f.FlashBoot(image)
	},
}

var flashAll bool

var flashUbootCmd = &cobra.Command{
	Use:   "flash-uboot",
	Short: "flash the U-Boot given by --uboot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFlasher()
		if err != nil {
			return err
		}
		image, err := loadImage("uboot", flags.uboot)
		if err != nil {
			return err
		}
		return f.FlashUboot(image, flashAll)
	},
}

func init() {
	flashUbootCmd.Flags().BoolVarP(&flashAll, "all", "a", false, "flash all copies of U-Boot (dangerous!)")
	rootCmd.AddCommand(membootCmd, flashBootCmd, flashUbootCmd)
}
