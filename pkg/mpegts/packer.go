// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// Frame 一帧视频，用于打包成mpegts格式的数据
type Frame struct {
	Pts uint64 // =(毫秒 * 90)
	Dts uint64

	// 关键帧为true，首个packet带上random_access_indicator以及PCR
	Key bool

	// Annexb格式
	Raw []byte
}

// Packer 维护各个PID的continuity_counter
type Packer struct {
	patCc   uint8
	pmtCc   uint8
	videoCc uint8
}

func NewPacker() *Packer {
	return &Packer{}
}

// PackPsi PAT + PMT，各占一个TS packet
func (p *Packer) PackPsi() []byte {
	out := make([]byte, 0, 2*PacketSize)
	out = append(out, PackPat(p.patCc)...)
	out = append(out, PackPmt(p.pmtCc)...)
	p.patCc = (p.patCc + 1) & 0x0F
	p.pmtCc = (p.pmtCc + 1) & 0x0F
	return out
}

// PackFrame 一帧打包成一个PES，切分成多个TS packet
//
// @return: 内存块为独立申请，调用结束后，内部不再持有
func (p *Packer) PackFrame(frame *Frame) []byte {
	data := append(packPesHeader(frame), frame.Raw...)
	out := make([]byte, 0, (len(data)/(PacketSize-4)+2)*PacketSize)

	first := true
	for len(data) > 0 {
		// adaptation field，包含adaptation_field_length
		var af []byte
		if first && frame.Key {
			// -----Adaptation-----------------------
			// adaptation_field_length
			// discontinuity_indicator              0
			// random_access_indicator              1
			// elementary_stream_priority_indicator 0
			// PCR_flag                             1
			// OPCR_flag                            0
			// splicing_point_flag                  0
			// transport_private_data_flag          0
			// adaptation_field_extension_flag      0
			// program_clock_reference              6字节
			// --------------------------------------
			af = make([]byte, 8)
			af[0] = 7
			af[1] = 0x50
			packPcr(af[2:], frame.Dts)
		}

		avail := PacketSize - 4 - len(af)
		if len(data) < avail {
			// 最后一个packet写不满，通过adaptation field填充，数据放在packet尾部
			af = stuffAdaptation(af, avail-len(data))
			avail = len(data)
		}

		// -----TS Header----------------
		// sync_byte
		// transport_error_indicator    0
		// payload_unit_start_indicator
		// transport_priority           0
		// PID
		// transport_scrambling_control 0
		// adaptation_field_control
		// continuity_counter
		// ------------------------------
		h1 := uint8(PidVideo>>8) & 0x1F
		if first {
			h1 |= 0x40
		}
		h3 := 0x10 | p.videoCc
		if af != nil {
			h3 |= 0x20
		}
		out = append(out, syncByte, h1, uint8(PidVideo&0xFF), h3)
		out = append(out, af...)
		out = append(out, data[:avail]...)

		data = data[avail:]
		p.videoCc = (p.videoCc + 1) & 0x0F
		first = false
	}
	return out
}

// ----- private -------------------------------------------------------------------------------------------------------

// packPesHeader
//
// -----PES Header------------
// packet_start_code_prefix
// stream_id
// PES_packet_length
// '10'
// PES_scrambling_control    0
// PES_priority              0
// data_alignment_indicator  0
// copyright                 0
// original_or_copy          0
// PTS_DTS_flags
// ESCR_flag                 0
// ES_rate_flag              0
// DSM_trick_mode_flag       0
// additional_copy_info_flag 0
// PES_CRC_flag              0
// PES_extension_flag        0
// PES_header_data_length
// ---------------------------
func packPesHeader(frame *Frame) []byte {
	headerSize := uint8(5)
	flags := uint8(0x80)
	if frame.Dts != frame.Pts {
		headerSize += 5
		flags |= 0x40
	}

	// PES_packet_length之后的3字节 + PTS/DTS + 整帧数据，视频超出时写0
	pesSize := len(frame.Raw) + int(headerSize) + 3
	if pesSize > 0xFFFF {
		pesSize = 0
	}

	out := make([]byte, 9+int(headerSize))
	out[0], out[1], out[2] = 0x00, 0x00, 0x01
	out[3] = StreamIdVideo
	out[4] = uint8(pesSize >> 8)
	out[5] = uint8(pesSize)
	out[6] = 0x80
	out[7] = flags
	out[8] = headerSize
	packPts(out[9:], flags>>6, frame.Pts+delay)
	if frame.Dts != frame.Pts {
		packPts(out[14:], 1, frame.Dts+delay)
	}
	return out
}

// stuffAdaptation 在adaptation field尾部追加stuff个字节的0xFF，没有adaptation field时新建一个
func stuffAdaptation(af []byte, stuff int) []byte {
	if af == nil {
		if stuff == 1 {
			// 只有adaptation_field_length，值为0
			return []byte{0}
		}
		af = []byte{0, 0} // adaptation_field_length + 全0的flags
		stuff -= 2
	}
	for i := 0; i < stuff; i++ {
		af = append(af, 0xFF)
	}
	af[0] = uint8(len(af) - 1)
	return af
}

func packPcr(out []byte, pcr uint64) {
	out[0] = uint8(pcr >> 25)
	out[1] = uint8(pcr >> 17)
	out[2] = uint8(pcr >> 9)
	out[3] = uint8(pcr >> 1)
	out[4] = uint8(pcr<<7) | 0x7e
	out[5] = 0
}

// 注意，除PTS外，DTS也使用这个函数打包
func packPts(out []byte, fb uint8, pts uint64) {
	var val uint64
	out[0] = (fb << 4) | (uint8(pts>>30) & 0x07 << 1) | 1

	val = (((pts >> 15) & 0x7FFF) << 1) | 1
	out[1] = uint8(val >> 8)
	out[2] = uint8(val)

	val = ((pts & 0x7FFF) << 1) | 1
	out[3] = uint8(val >> 8)
	out[4] = uint8(val)
}
