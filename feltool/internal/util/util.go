// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/term"
)

// Warn prints a formatted warning to the standard error.
func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

// FatalErr prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	os.Exit(1)
}

// Quiet disables the progress bar.
var Quiet bool

// ProgressEnabled reports whether Progress draws anything. The bar is only
// drawn on a terminal.
func ProgressEnabled() bool {
	return !Quiet && term.IsTerminal(int(os.Stderr.Fd()))
}

var pbuf = make([]byte, 80)

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

func Progress(pre string, cur, max, scale int, post string) {
	if !ProgressEnabled() {
		return
	}
	os.Stderr.Write(appendProgress(pbuf[:0], pre, cur, max, scale, post))
}

func appendProgress(buf []byte, pre string, cur, max, scale int, post string) []byte {
	if max <= 0 {
		cur, max = 1, 1
	}
	cur = min(cur, max)
	buf = append(buf, '\r')
	buf = append(buf, pre...)
	done := 25 * cur / max
	buf = append(buf, pdone[:2+done]...)
	buf = append(buf, ptodo[done:]...)
	buf = strconv.AppendInt(buf, int64(cur/scale), 10)
	buf = append(buf, ' ')
	buf = append(buf, post...)
	if cur == max {
		buf = append(buf, '\n')
	}
	return buf
}

// PadBytes returns the slice containing n byte equal b.
func PadBytes(cache *[]byte, n int, b byte) []byte {
	if len(*cache) < n {
		*cache = make([]byte, n)
		for i := range *cache {
			(*cache)[i] = b
		}
	}
	return (*cache)[:n]
}
