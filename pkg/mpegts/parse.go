// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/nazabits"
)

type TsPacketHeader struct {
	Sync             uint8
	Err              uint8
	PayloadUnitStart uint8
	Prio             uint8
	Pid              uint16
	Scra             uint8
	Adaptation       uint8
	Cc               uint8
}

// HasPayload adaptation_field_control为01或11
func (h *TsPacketHeader) HasPayload() bool {
	return h.Adaptation&0x1 != 0
}

func ParseTsPacketHeader(b []byte) (h TsPacketHeader, err error) {
	if len(b) < 4 {
		return h, wrapErr("ts header too short")
	}
	br := nazabits.NewBitReader(b)
	h.Sync, _ = br.ReadBits8(8)
	h.Err, _ = br.ReadBits8(1)
	h.PayloadUnitStart, _ = br.ReadBits8(1)
	h.Prio, _ = br.ReadBits8(1)
	h.Pid, _ = br.ReadBits16(13)
	h.Scra, _ = br.ReadBits8(2)
	h.Adaptation, _ = br.ReadBits8(2)
	h.Cc, _ = br.ReadBits8(4)
	if h.Sync != syncByte {
		return h, wrapErr("sync byte mismatch. sync=%02x", h.Sync)
	}
	return
}

// PacketPayload 跳过TS header以及adaptation field
func PacketPayload(packet []byte) (h TsPacketHeader, payload []byte, err error) {
	if len(packet) != PacketSize {
		return h, nil, wrapErr("invalid packet size. size=%d", len(packet))
	}
	if h, err = ParseTsPacketHeader(packet); err != nil {
		return
	}
	pos := 4
	if h.Adaptation&0x2 != 0 {
		pos += 1 + int(packet[4])
		if pos > PacketSize {
			return h, nil, wrapErr("adaptation field overflow")
		}
	}
	if !h.HasPayload() {
		return h, nil, nil
	}
	return h, packet[pos:], nil
}

// ----- PAT/PMT -------------------------------------------------------------------------------------------------------

type PatProgramElement struct {
	Pn    uint16
	Pmpid uint16
}

type Pat struct {
	Tsi   uint16
	Vn    uint8
	Ppes  []PatProgramElement
	Crc32 uint32
}

type PmtProgramElement struct {
	StreamType uint8
	Pid        uint16
}

type Pmt struct {
	Pn     uint16
	PcrPid uint16
	Pes    []PmtProgramElement
	Crc32  uint32
}

// ParsePat
//
// @param b: 从pointer_field之后开始
func ParsePat(b []byte) (pat Pat, err error) {
	sl, br, err := parseSectionHeader(b, TsPsiIdPas)
	if err != nil {
		return
	}
	pat.Tsi, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	pat.Vn, _ = br.ReadBits8(5)
	_, _ = br.ReadBits8(1)
	_, _ = br.ReadBits16(16)

	for i := 0; i < int(sl)-9; i += 4 {
		var ppe PatProgramElement
		ppe.Pn, _ = br.ReadBits16(16)
		_, _ = br.ReadBits8(3)
		ppe.Pmpid, _ = br.ReadBits16(13)
		pat.Ppes = append(pat.Ppes, ppe)
	}
	pat.Crc32, err = br.ReadBits32(32)
	return
}

func (pat *Pat) SearchPid(pid uint16) bool {
	for _, ppe := range pat.Ppes {
		if pid == ppe.Pmpid {
			return true
		}
	}
	return false
}

func ParsePmt(b []byte) (pmt Pmt, err error) {
	sl, br, err := parseSectionHeader(b, TsPsiIdPms)
	if err != nil {
		return
	}
	pmt.Pn, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2 + 5 + 1)
	_, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(3)
	pmt.PcrPid, _ = br.ReadBits16(13)
	_, _ = br.ReadBits8(4)
	pil, _ := br.ReadBits16(12)
	if _, err = br.ReadBytes(uint(pil)); err != nil {
		return pmt, wrapErr("program info overflow")
	}

	remain := int(sl) - 13 - int(pil)
	for remain >= 5 {
		var ppe PmtProgramElement
		ppe.StreamType, _ = br.ReadBits8(8)
		_, _ = br.ReadBits8(3)
		ppe.Pid, _ = br.ReadBits16(13)
		_, _ = br.ReadBits8(4)
		eil, _ := br.ReadBits16(12)
		if _, err = br.ReadBytes(uint(eil)); err != nil {
			return pmt, wrapErr("es info overflow")
		}
		pmt.Pes = append(pmt.Pes, ppe)
		remain -= 5 + int(eil)
	}
	pmt.Crc32, err = br.ReadBits32(32)
	return
}

func (pmt *Pmt) SearchPid(pid uint16) *PmtProgramElement {
	for i := range pmt.Pes {
		if pmt.Pes[i].Pid == pid {
			return &pmt.Pes[i]
		}
	}
	return nil
}

// parseSectionHeader 检查table_id、长度以及CRC，返回section_length以及定位到table_id_extension的reader
func parseSectionHeader(b []byte, tableId uint8) (uint16, nazabits.BitReader, error) {
	var br nazabits.BitReader
	if len(b) < 3 {
		return 0, br, wrapErr("section too short")
	}
	if b[0] != tableId {
		return 0, br, wrapErr("table id mismatch. expected=%d, actual=%d", tableId, b[0])
	}
	sl := (uint16(b[1]&0x0F) << 8) | uint16(b[2])
	if sl < 9 || int(sl)+3 > len(b) {
		return 0, br, wrapErr("invalid section length. sl=%d, len=%d", sl, len(b))
	}
	if CalcCrc32(0xffffffff, b[:3+sl]) != 0 {
		return 0, br, wrapErr("crc mismatch")
	}
	br = nazabits.NewBitReader(b[3 : 3+sl])
	return sl, br, nil
}

// ----- PES -----------------------------------------------------------------------------------------------------------

type PesHeader struct {
	StreamId uint8
	PesSize  uint16
	Pts      uint64
	Dts      uint64

	// PES header的总长度，之后为ES数据
	HeaderSize int
}

func ParsePesHeader(b []byte) (h PesHeader, err error) {
	if len(b) < 9 || b[0] != 0 || b[1] != 0 || b[2] != 1 {
		return h, wrapErr("invalid pes start code")
	}
	h.StreamId = b[3]
	h.PesSize = uint16(b[4])<<8 | uint16(b[5])
	ptsDtsFlag := b[7] >> 6
	h.HeaderSize = 9 + int(b[8])
	if h.HeaderSize > len(b) {
		return h, wrapErr("pes header overflow")
	}

	if ptsDtsFlag&0x2 != 0 {
		if h.HeaderSize < 14 {
			return h, wrapErr("pes header too short for pts")
		}
		h.Pts = readPts(b[9:])
		h.Dts = h.Pts
	}
	if ptsDtsFlag&0x1 != 0 {
		if h.HeaderSize < 19 {
			return h, wrapErr("pes header too short for dts")
		}
		h.Dts = readPts(b[14:])
	}
	return
}

func readPts(b []byte) uint64 {
	pts := uint64(b[0]>>1) & 0x07 << 30
	pts |= (uint64(b[1])<<8 | uint64(b[2])) >> 1 << 15
	pts |= (uint64(b[3])<<8 | uint64(b[4])) >> 1
	return pts
}
