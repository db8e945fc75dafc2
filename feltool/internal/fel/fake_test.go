// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/embeddedgo/feltools/feltool/internal/awusb"
	"github.com/embeddedgo/feltools/feltool/internal/usbdev"
)

var errTimeout = errors.New("fake: transfer timed out")

const pageSize = 0x1000

// board simulates an Allwinner SoC in FEL (or burn) mode together with a
// minimal U-Boot that understands the commands issued by Session.
type board struct {
	t *testing.T

	in, out uint8
	boardID uint32
	burn    bool

	pages map[uint32]*[pageSize]byte
	flash []byte

	absent       int // Open calls that will fail
	rebootAbsent int // added to absent when U-Boot drops off the bus
	opens        int
	closes       int
	conn         *fakeConn

	dramUp       bool
	fes1Runs     int
	ubootUploads int
	commands     []string
	requests     map[awusb.Cmd]int

	stateFor       func(m awusb.Message) uint8
	failVerifyRead bool
	maxXfer        int
	zeroWrite      bool
	cswHook        func(*awusb.CSW)

	// protocol state
	inBuf    []byte
	outBuf   []byte
	expect   int
	msg      *awusb.Message
	gotData  bool
	failRead bool
}

func newBoard(t *testing.T) *board {
	return &board{
		t:        t,
		in:       FELIn,
		out:      FELOut,
		boardID:  BoardID,
		pages:    make(map[uint32]*[pageSize]byte),
		flash:    make([]byte, 8*SectorSize),
		requests: make(map[awusb.Cmd]int),
	}
}

func (b *board) store(addr uint32, p []byte) {
	for len(p) > 0 {
		pg := b.pages[addr/pageSize]
		if pg == nil {
			pg = new([pageSize]byte)
			b.pages[addr/pageSize] = pg
		}
		n := copy(pg[addr%pageSize:], p)
		p = p[n:]
		addr += uint32(n)
	}
}

func (b *board) load(addr, n uint32) []byte {
	p := make([]byte, n)
	for i := uint32(0); i < n; {
		off := (addr + i) % pageSize
		k := min(n-i, pageSize-off)
		if pg := b.pages[(addr+i)/pageSize]; pg != nil {
			copy(p[i:i+k], pg[off:])
		}
		i += k
	}
	return p
}

func (b *board) state(m awusb.Message) uint8 {
	if b.stateFor != nil {
		if s := b.stateFor(m); s != 0 {
			return s
		}
	}
	if (m.Cmd == awusb.Download || m.Cmd == awusb.Upload) && m.Addr >= DRAMBase && !b.dramUp {
		return 1
	}
	return 0
}

func (b *board) resetProto() {
	b.inBuf, b.outBuf = nil, nil
	b.expect, b.msg, b.gotData, b.failRead = 0, nil, false, false
}

func (b *board) process() {
	for {
		if b.burn {
			if len(b.inBuf) < awusb.CBWSize {
				return
			}
			cbw, err := awusb.DecodeCBW(b.inBuf)
			if err != nil {
				b.t.Errorf("fake: %v", err)
				return
			}
			b.inBuf = b.inBuf[awusb.CBWSize:]
			b.burnReply(cbw)
			continue
		}
		if b.expect == 0 {
			if len(b.inBuf) < awusb.RequestSize {
				return
			}
			req, err := awusb.DecodeRequest(b.inBuf)
			if err != nil {
				b.t.Errorf("fake: %v", err)
				return
			}
			b.inBuf = b.inBuf[awusb.RequestSize:]
			switch req.Cmd {
			case awusb.Write:
				b.expect = int(req.Len)
			case awusb.Read:
				b.reply(req.Len)
			default:
				b.t.Errorf("fake: bad AWUC request %#x", req.Cmd)
			}
			continue
		}
		if len(b.inBuf) < b.expect {
			return
		}
		payload := slices.Clone(b.inBuf[:b.expect])
		b.inBuf = b.inBuf[b.expect:]
		b.expect = 0
		b.received(payload)
		b.outBuf = awusb.AppendResponse(b.outBuf, awusb.Response{})
	}
}

func (b *board) received(p []byte) {
	if b.msg == nil {
		m, err := awusb.DecodeMessage(p)
		if err != nil {
			b.t.Errorf("fake: %v", err)
			return
		}
		b.requests[m.Cmd]++
		b.msg, b.gotData = &m, false
		return
	}
	m := b.msg
	if m.Cmd != awusb.Download || b.gotData {
		b.t.Errorf("fake: unexpected %d bytes during FEL %s", len(p), m.Cmd)
		return
	}
	if uint32(len(p)) != m.Len {
		b.t.Errorf("fake: download of %d bytes announced as %d", len(p), m.Len)
	}
	b.gotData = true
	if b.state(*m) != 0 {
		return
	}
	if m.Addr == UBootBase {
		b.ubootUploads++
	}
	b.store(m.Addr, p)
}

func (b *board) reply(n uint32) {
	m := b.msg
	if m == nil {
		b.t.Errorf("fake: read of %d bytes without FEL request", n)
		return
	}
	if (m.Cmd == awusb.Upload || m.Cmd == awusb.VerifyDevice) && !b.gotData {
		b.gotData = true
		if m.Cmd == awusb.VerifyDevice {
			if b.failVerifyRead {
				b.failVerifyRead = false
				b.failRead = true
				return
			}
			info := awusb.DeviceInfo{
				Magic: [8]byte{'A', 'W', 'U', 'S', 'B', 'F', 'E', 'X'},
				Board: b.boardID,
			}
			b.outBuf = info.Append(b.outBuf)
		} else {
			if n != m.Len {
				b.t.Errorf("fake: upload of %d bytes announced as %d", n, m.Len)
			}
			b.outBuf = append(b.outBuf, b.load(m.Addr, n)...)
		}
	} else {
		st := awusb.Status{Mark: 0xffff, State: b.state(*m)}
		b.outBuf = st.Append(b.outBuf)
		b.msg = nil
		if st.State == 0 && m.Cmd == awusb.Run {
			b.run(m.Addr)
		}
	}
	b.outBuf = awusb.AppendResponse(b.outBuf, awusb.Response{})
}

func (b *board) run(addr uint32) {
	switch addr {
	case Fes1Base:
		b.fes1Runs++
		b.dramUp = true
	case UBootBase:
		b.runUBoot()
	default:
		b.t.Errorf("fake: run at %#x", addr)
	}
}

func (b *board) runUBoot() {
	img := b.load(UBootBase, pageSize)
	i := bytes.Index(img, []byte(cmdMarker))
	if i < 0 {
		b.t.Errorf("fake: U-Boot without %s", cmdMarker)
		return
	}
	cmd := img[i+len(cmdMarker):]
	cmd = cmd[:bytes.IndexByte(cmd, 0)]
	b.commands = append(b.commands, string(cmd))
	for _, part := range strings.Split(string(cmd), ";") {
		f := strings.Fields(part)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "sunxi_flash":
			b.sunxiFlash(f[1:])
		case "efex_test", "reboot":
			b.absent += b.rebootAbsent
		}
	}
}

func (b *board) sunxiFlash(args []string) {
	if len(args) != 4 {
		b.t.Errorf("fake: sunxi_flash %v", args)
		return
	}
	var v [3]uint32
	for i, a := range args[1:] {
		u, err := strconv.ParseUint(a, 16, 32)
		if err != nil {
			b.t.Errorf("fake: sunxi_flash: %v", err)
			return
		}
		v[i] = uint32(u)
	}
	mem, off, size := v[0], v[1]*SectorSize, v[2]*SectorSize
	if int(off+size) > len(b.flash) {
		b.t.Errorf("fake: sunxi_flash beyond flash end")
		return
	}
	switch args[0] {
	case "phy_read":
		b.store(mem, b.flash[off:off+size])
	case "phy_write":
		copy(b.flash[off:off+size], b.load(mem, size))
	default:
		b.t.Errorf("fake: sunxi_flash %s", args[0])
	}
}

func (b *board) burnReply(cbw awusb.CBW) {
	answer := make([]byte, cbw.DataLen)
	op := cbw.CB[1]
	if cbw.CB[0] != 0xf8 || cbw.CBLen != 2 || cbw.Tag != burnTag+uint32(op) {
		b.t.Errorf("fake: bad burn CBW %+v", cbw)
	}
	if int(op) < len(burnAnswers) {
		copy(answer, burnAnswers[op])
	}
	b.outBuf = append(b.outBuf, answer...)
	csw := awusb.CSW{Signature: awusb.CSWSignature, Tag: cbw.Tag}
	if b.cswHook != nil {
		b.cswHook(&csw)
	}
	b.outBuf = csw.Append(b.outBuf)
}

type fakeConn struct {
	b      *board
	closed bool
}

func (c *fakeConn) Endpoints() (in, out usbdev.Endpoint) {
	return usbdev.Endpoint{Addr: c.b.in, MaxPacketSize: 512},
		usbdev.Endpoint{Addr: c.b.out, MaxPacketSize: 512}
}

func (c *fakeConn) Bind(in, out uint8) error {
	if in != c.b.in || out != c.b.out {
		return errors.New("fake: no such endpoint")
	}
	return nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	b := c.b
	if c.closed {
		return 0, errors.New("fake: read on closed device")
	}
	if b.failRead {
		b.failRead = false
		return 0, errTimeout
	}
	if len(b.outBuf) == 0 {
		return 0, errTimeout
	}
	if b.maxXfer > 0 && len(p) > b.maxXfer {
		p = p[:b.maxXfer]
	}
	n := copy(p, b.outBuf)
	b.outBuf = b.outBuf[n:]
	return n, nil
}

func (c *fakeConn) Write(p []byte) (int, error) {
	b := c.b
	if c.closed {
		return 0, errors.New("fake: write on closed device")
	}
	if b.zeroWrite {
		return 0, nil
	}
	n := len(p)
	if b.maxXfer > 0 {
		n = min(n, b.maxXfer)
	}
	b.inBuf = append(b.inBuf, p[:n]...)
	b.process()
	return n, nil
}

func (c *fakeConn) Close() error {
	if !c.closed {
		c.closed = true
		c.b.closes++
	}
	return nil
}

type fakeBus struct {
	b *board
}

func (f fakeBus) Exists(vendor, product uint16) bool {
	return vendor == VendorID && product == ProductID && f.b.absent == 0
}

func (f fakeBus) Open(vendor, product uint16) (Device, error) {
	b := f.b
	b.opens++
	if vendor != VendorID || product != ProductID {
		return nil, ErrNotFound
	}
	if b.absent > 0 {
		b.absent--
		return nil, ErrNotFound
	}
	b.resetProto()
	b.conn = &fakeConn{b: b}
	return b.conn, nil
}

func testFes1() []byte {
	p := make([]byte, 0x100)
	for i := range p {
		p[i] = byte(i*7 + 1)
	}
	return p
}

func testUBoot() []byte {
	p := make([]byte, 0x200)
	for i := range 0x40 {
		p[i] = byte(0xa5 ^ i)
	}
	copy(p[0x40:], cmdMarker)
	return p
}

// newSession returns an open FEL session to b with fast timings.
func newSession(t *testing.T, b *board, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithReconnect(DefaultReconnectAttempts, time.Millisecond),
		WithSettle(5*time.Millisecond, time.Millisecond),
		WithDRAMInitDelay(0),
	}, opts...)
	s := New(fakeBus{b}, opts...)
	s.SetFes1(testFes1())
	s.SetUBoot(testUBoot())
	if err := s.Open(FEL); err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}
