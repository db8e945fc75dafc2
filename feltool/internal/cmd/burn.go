// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/embeddedgo/feltools/feltool/internal/fel"
	"github.com/embeddedgo/feltools/feltool/internal/flasher"
	"github.com/spf13/cobra"
)

var errNoAnswer = errors.New("unexpected answer")

var burnOps = map[string]func(s *fel.Session) (bool, error){
	"probe": (*fel.Session).BurnProbe,
	"exit":  (*fel.Session).BurnExit,
	"fel":   (*fel.Session).BurnEnterFEL,
}

var burnCmd = &cobra.Command{
	Use:       "burn probe|exit|fel",
	Short:     "talk to a device in the burn (USB update) mode",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"probe", "exit", "fel"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s := fel.New(fel.USB{}, options()...)
		if err := s.Open(fel.Burn); err != nil {
			return err
		}
		defer s.Close()
		ok, err := burnOps[args[0]](s)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("burn %s: %w", args[0], errNoAnswer)
		}
		fmt.Println("ok")
		return nil
	},
}

var waitFor time.Duration

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "wait for a device in FEL mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if waitFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, waitFor)
			defer cancel()
		}
		f := flasher.New(fel.USB{}, nil, nil, nil, options()...)
		return f.WaitForDevice(ctx)
	},
}

func init() {
	waitCmd.Flags().DurationVar(&waitFor, "for", 0, "give up after this time (0 means wait forever)")
	rootCmd.AddCommand(burnCmd, waitCmd)
}
