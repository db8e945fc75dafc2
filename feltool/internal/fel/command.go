// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RunCommand runs a U-Boot shell command. The command is written into the
// bootcmd variable of the resident U-Boot image (the image is uploaded
// first if it is not resident yet) and U-Boot is started.
//
// With noreturn the call returns as soon as U-Boot is started. Otherwise
// the command is expected to drop the USB connection (reboot, return to
// FEL): the session is closed, left alone for SettleTime and then reopened
// in FEL mode. If the device doesn't come back within ReconnectAttempts
// the session stays closed and the error wraps ErrNoAnswer.
func (s *Session) RunCommand(command string, noreturn bool, progress ProgressFunc) (err error) {
	defer wrapErr("RunCommand", &err)
	return s.runCommand(command, noreturn, progress)
}

func (s *Session) runCommand(command string, noreturn bool, progress ProgressFunc) error {
	progress.call(RunningCommand, command)
	if s.cmdOffset < 0 {
		return ErrNoCommandVar
	}
	if len(s.uboot) < ubootTestSize {
		return ErrBadUBoot
	}
	b, err := s.readMemory(UBootBase, ubootTestSize, nil)
	if err != nil {
		return err
	}
	if !bytes.Equal(b, s.uboot[:ubootTestSize]) {
		if err := s.writeMemory(UBootBase, s.uboot, nil); err != nil {
			return err
		}
	}
	cmd := make([]byte, len(command)+1) // NUL terminated
	copy(cmd, command)
	if err := s.writeMemory(UBootBase+uint32(s.cmdOffset), cmd, nil); err != nil {
		return err
	}
	if err := s.exec(UBootBase); err != nil {
		return err
	}
	if noreturn {
		return nil
	}
	return s.reconnect(command, progress)
}

func (s *Session) reconnect(command string, progress ProgressFunc) error {
	s.close()
	for range s.cfg.SettleTime / s.cfg.SettleTick {
		time.Sleep(s.cfg.SettleTick)
		progress.call(RunningCommand, command)
	}
	attempt := 0
	b := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(s.cfg.ReconnectDelay),
		uint64(s.cfg.ReconnectAttempts-1),
	)
	err := backoff.Retry(func() error {
		attempt++
		err := s.open(FEL)
		if err != nil {
			s.logf("reconnect attempt %d: %v", attempt, err)
		}
		return err
	}, b)
	if err != nil {
		s.close()
		return fmt.Errorf("%w after %d attempts: %w", ErrNoAnswer, attempt, err)
	}
	return nil
}
