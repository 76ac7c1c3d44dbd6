// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
)

// PsiId
const (
	TsPsiIdPas = 0x00 // program_association_section
	TsPsiIdPms = 0x02 // TS_program_map_section
)

// psiSection 只有一个节目、一路视频的PAT或PMT
//
// <ISO_IEC_13818-1.pdf> <2.4.4.3> <2.4.4.8>
type psiSection struct {
	tableId          uint8
	tableIdExtension uint16 // PAT为transport_stream_id，PMT为program_number
	versionNumber    uint8

	// PAT
	programNumber uint16
	pmtPid        uint16

	// PMT
	pcrPid     uint16
	streamType uint8
	esPid      uint16
}

func (psi *psiSection) dataLength() uint16 {
	if psi.tableId == TsPsiIdPas {
		// program_number(16) + reserved(3) + program_map_PID(13)
		return 4
	}
	// reserved(3) + PCR_PID(13) + reserved(4) + program_info_length(12)
	// stream_type(8) + reserved(3) + elementary_PID(13) + reserved(4) + ES_info_length(12)
	return 4 + 5
}

// pack 从table_id开始，到CRC_32结束
func (psi *psiSection) pack() []byte {
	// table_id_extension到last_section_number共5字节，CRC_32共4字节
	sectionLength := 5 + psi.dataLength() + 4
	out := make([]byte, 3+sectionLength)
	bw := nazabits.NewBitWriter(out)

	bw.WriteBits8(8, psi.tableId)
	bw.WriteBit(1) // section_syntax_indicator
	bw.WriteBit(0)
	bw.WriteBits8(2, 0xff)
	bw.WriteBits16(12, sectionLength)

	bw.WriteBits16(16, psi.tableIdExtension)
	bw.WriteBits8(2, 0xff)
	bw.WriteBits8(5, psi.versionNumber)
	bw.WriteBit(1)      // current_next_indicator
	bw.WriteBits8(8, 0) // section_number
	bw.WriteBits8(8, 0) // last_section_number

	switch psi.tableId {
	case TsPsiIdPas:
		bw.WriteBits16(16, psi.programNumber)
		bw.WriteBits8(3, 0xff)
		bw.WriteBits16(13, psi.pmtPid)
	case TsPsiIdPms:
		bw.WriteBits8(3, 0xff)
		bw.WriteBits16(13, psi.pcrPid)
		bw.WriteBits8(4, 0xff)
		bw.WriteBits16(12, 0) // program_info_length
		bw.WriteBits8(8, psi.streamType)
		bw.WriteBits8(3, 0xff)
		bw.WriteBits16(13, psi.esPid)
		bw.WriteBits8(4, 0xff)
		bw.WriteBits16(12, 0) // ES_info_length
	}

	crc := CalcCrc32(0xffffffff, out[:len(out)-4])
	bele.BePutUint32(out[len(out)-4:], crc)
	return out
}

// packPsiPacket 一个section放入一个TS packet，剩余部分填充0xFF
func packPsiPacket(pid uint16, cc uint8, section []byte) []byte {
	packet := make([]byte, PacketSize)
	packet[0] = syncByte
	packet[1] = 0x40 | uint8(pid>>8)&0x1F // payload_unit_start_indicator
	packet[2] = uint8(pid)
	packet[3] = 0x10 | cc&0x0F // 只有payload
	packet[4] = 0              // pointer_field
	n := copy(packet[5:], section)
	for i := 5 + n; i < PacketSize; i++ {
		packet[i] = 0xFF
	}
	return packet
}

func PackPat(cc uint8) []byte {
	psi := psiSection{
		tableId:          TsPsiIdPas,
		tableIdExtension: 1,
		programNumber:    ProgramNumber,
		pmtPid:           PidPmt,
	}
	return packPsiPacket(PidPat, cc, psi.pack())
}

func PackPmt(cc uint8) []byte {
	psi := psiSection{
		tableId:          TsPsiIdPms,
		tableIdExtension: ProgramNumber,
		pcrPid:           PidVideo,
		streamType:       StreamTypeHevc,
		esPid:            PidVideo,
	}
	return packPsiPacket(PidPmt, cc, psi.pack())
}
