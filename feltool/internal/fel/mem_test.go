// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"fmt"
	"testing"

	"github.com/embeddedgo/feltools/feltool/internal/awusb"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i>>8) ^ byte(i) ^ seed
	}
	return p
}

func TestWriteReadMemory(t *testing.T) {
	for _, n := range []int{1, 3, 4, 5, 0x100, MaxBulkSize, MaxBulkSize + 1, 2*MaxBulkSize + 6} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			b := newBoard(t)
			s := newSession(t, b)
			data := pattern(n, 0x3c)
			const addr = 0x8000
			require.NoError(t, s.WriteMemory(addr, data, nil))
			got, err := s.ReadMemory(addr, uint32(n), nil)
			require.NoError(t, err)
			padded := (n + 3) &^ 3
			require.Len(t, got, padded)
			if diff := cmp.Diff(data, got[:n]); diff != "" {
				t.Errorf("read back mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, make([]byte, padded-n), got[n:])
			chunks := (padded + MaxBulkSize - 1) / MaxBulkSize
			assert.Equal(t, chunks, b.requests[awusb.Download])
			assert.Equal(t, chunks, b.requests[awusb.Upload])
		})
	}
}

func TestWriteMemoryPadding(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	b.store(0x9000, []byte{9, 9, 9, 9, 9, 9, 9, 9, 9})
	require.NoError(t, s.WriteMemory(0x9000, []byte{1, 2, 3, 4, 5}, nil))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0, 9}, b.load(0x9000, 9))
}

func TestMemoryProgress(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	var actions []Action
	progress := func(a Action, cmd string) {
		assert.Empty(t, cmd)
		actions = append(actions, a)
	}
	require.NoError(t, s.WriteMemory(0x8000, make([]byte, 2*MaxBulkSize), progress))
	_, err := s.ReadMemory(0x8000, MaxBulkSize+4, progress)
	require.NoError(t, err)
	assert.Equal(t, []Action{WritingMemory, WritingMemory, ReadingMemory, ReadingMemory}, actions)
}

func TestWriteMemoryChunkFailure(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	b.stateFor = func(m awusb.Message) uint8 {
		if m.Cmd == awusb.Download && m.Addr == 0x8000+MaxBulkSize {
			return 4
		}
		return 0
	}
	data := pattern(3*MaxBulkSize, 1)
	err := s.WriteMemory(0x8000, data, nil)
	require.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "state 4")
	assert.Equal(t, data[:MaxBulkSize], b.load(0x8000, MaxBulkSize))
	assert.Equal(t, make([]byte, MaxBulkSize), b.load(0x8000+MaxBulkSize, MaxBulkSize))
	assert.Equal(t, 2, b.requests[awusb.Download])
}

func TestShortTransfers(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	b.maxXfer = 7
	data := pattern(301, 0x77)
	require.NoError(t, s.WriteMemory(0x4000, data, nil))
	got, err := s.ReadMemory(0x4000, 301, nil)
	require.NoError(t, err)
	assert.Equal(t, data, got[:301])
}

func TestZeroLengthWrite(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	b.zeroWrite = true
	assert.ErrorIs(t, s.WriteMemory(0x4000, []byte{1}, nil), ErrShortWrite)
}

func TestReadTimeout(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	b.failRead = true
	_, err := s.ReadMemory(0x4000, 4, nil)
	assert.ErrorIs(t, err, errTimeout)
	assert.Contains(t, err.Error(), "fel: ReadMemory:")
}

func TestInitDRAMOnce(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	require.NoError(t, s.WriteMemory(DRAMBase, []byte{1, 2, 3, 4}, nil))
	assert.True(t, s.DRAMReady())
	require.NoError(t, s.WriteMemory(DRAMBase+0x100, []byte{5, 6, 7, 8}, nil))
	got, err := s.ReadMemory(DRAMBase, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	assert.Equal(t, 1, b.fes1Runs)
	assert.Equal(t, 1, b.requests[awusb.Run])

	uploads := b.requests[awusb.Upload]
	require.NoError(t, s.InitDRAM(false))
	assert.Equal(t, uploads, b.requests[awusb.Upload], "no traffic when DRAM is ready")
	assert.Equal(t, testFes1(), b.load(Fes1Base, uint32(len(testFes1()))))
}

func TestInitDRAMResident(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	require.NoError(t, s.InitDRAM(false))
	require.Equal(t, 1, b.fes1Runs)

	// A new session finds fes1 in SRAM and skips the upload.
	require.NoError(t, s.Open(FEL))
	assert.False(t, s.DRAMReady())
	require.NoError(t, s.InitDRAM(false))
	assert.True(t, s.DRAMReady())
	assert.Equal(t, 1, b.fes1Runs)

	// Forcing still uses the resident check.
	require.NoError(t, s.InitDRAM(true))
	assert.Equal(t, 1, b.fes1Runs)
}

func TestInitDRAMCloseResets(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	require.NoError(t, s.InitDRAM(false))
	require.NoError(t, s.Close())
	assert.False(t, s.DRAMReady())
}

func TestInitDRAMBadFes1(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	s.SetFes1(make([]byte, fes1TestSize-1))
	before := b.requests[awusb.Upload]
	err := s.InitDRAM(false)
	assert.ErrorIs(t, err, ErrBadFes1)
	assert.ErrorIs(t, s.WriteMemory(DRAMBase, []byte{1}, nil), ErrBadFes1)
	assert.Equal(t, before, b.requests[awusb.Upload])
	assert.Equal(t, 0, b.fes1Runs)
}

func TestExecStatus(t *testing.T) {
	b := newBoard(t)
	s := newSession(t, b)
	b.stateFor = func(m awusb.Message) uint8 {
		if m.Cmd == awusb.Run {
			return 1
		}
		return 0
	}
	assert.ErrorIs(t, s.Exec(Fes1Base), ErrStatus)
	assert.Equal(t, 0, b.fes1Runs)
}
