// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package innertest

import (
	"math/bits"
	"math/rand"

	"github.com/q191201771/tilemerge/pkg/h2645"
	"github.com/q191201771/tilemerge/pkg/hevc"
)

// 生成用于测试的tile码流。
//
// 参数集以及slice header是语法上合法的，slice data是随机字节（不可解码），但保证：
//   - 每个子码流的最后一个字节非0，与真实码流中byte_alignment()的效果一致
//   - 随机字节中包含会触发防竞争字节插入的序列
//
// 这样生成的码流可以用于验证合并流程中除像素重建以外的所有环节。

type StreamConfig struct {
	Width       uint32 // 亮度采样点
	Height      uint32
	Log2CtbSize uint32 // 4~6，默认6
	ProfileIdc  uint8  // 默认Main
	LevelIdc    uint8  // 默认93

	NumFrames int
	GopSize   int // 每隔多少帧一个IDR，0表示只有第一帧是IDR

	Wpp                    bool // entropy_coding_sync_enabled_flag，每个CTU行一个子码流
	TilesEnabled           bool // 输入码流本身开启tiles，用于测试合并时的拒绝逻辑
	DependentSlices        bool // 第二个及以后的slice segment使用dependent slice segment
	SegmentsPerPicture     int  // 每帧slice segment的个数，按CTU行划分，默认1
	LoopFilterAcrossSlices bool // pps_loop_filter_across_slices_enabled_flag
	Sao                    bool
	ConformanceWindow      bool // 在右边和下边添加裁剪窗口

	PrefixSei bool // 每个IRAP之前添加prefix sei
	SuffixSei bool // 每帧之后添加suffix sei
	Aud       bool // 每帧之前添加aud

	// PpsId 默认0
	PpsId uint32

	Seed int64
}

type Stream struct {
	Config StreamConfig

	// Annex-B格式的完整码流
	Data []byte

	Vps []byte // 不包含start code的完整nalu
	Sps []byte
	Pps []byte

	Pictures []Picture
}

type Picture struct {
	NaluType uint8
	PocLsb   uint32
	Segments []Segment
}

type Segment struct {
	Address   uint32
	Dependent bool

	// Substreams slice data的各个子码流，未转义
	Substreams [][]byte

	// Nalu 不包含start code的完整nalu
	Nalu []byte
}

const (
	log2MaxPocLsb = 8
	numStRps      = 2
)

func (c *StreamConfig) fill() {
	if c.Log2CtbSize == 0 {
		c.Log2CtbSize = 6
	}
	if c.ProfileIdc == 0 {
		c.ProfileIdc = hevc.ProfileIdcMain
	}
	if c.LevelIdc == 0 {
		c.LevelIdc = 93
	}
	if c.SegmentsPerPicture == 0 {
		c.SegmentsPerPicture = 1
	}
	if c.NumFrames == 0 {
		c.NumFrames = 1
	}
}

func (c *StreamConfig) ctbSize() uint32 {
	return 1 << c.Log2CtbSize
}

func (c *StreamConfig) widthInCtbs() uint32 {
	return (c.Width + c.ctbSize() - 1) / c.ctbSize()
}

func (c *StreamConfig) heightInCtbs() uint32 {
	return (c.Height + c.ctbSize() - 1) / c.ctbSize()
}

// NewStream 按配置生成码流
func NewStream(config StreamConfig) *Stream {
	config.fill()
	s := &Stream{
		Config: config,
	}
	rnd := rand.New(rand.NewSource(config.Seed))

	s.Vps = nalu(h2645.H265NaluTypeVps, 0, buildVps(&config))
	s.Sps = nalu(h2645.H265NaluTypeSps, 0, buildSps(&config))
	s.Pps = nalu(h2645.H265NaluTypePps, 0, buildPps(&config))

	pocBase := 0
	for i := 0; i < config.NumFrames; i++ {
		idr := i == 0 || (config.GopSize > 0 && i%config.GopSize == 0)
		if idr {
			pocBase = i
		}
		pic := s.buildPicture(rnd, i, idr, uint32(i-pocBase)%(1<<log2MaxPocLsb))

		var au [][]byte
		if config.Aud {
			au = append(au, nalu(h2645.H265NaluTypeAud, 0, []byte{0x50}))
		}
		if idr {
			au = append(au, s.Vps, s.Sps, s.Pps)
			if config.PrefixSei {
				au = append(au, nalu(h2645.H265NaluTypeSei, 0, userDataSei(i)))
			}
		}
		for _, seg := range pic.Segments {
			au = append(au, seg.Nalu)
		}
		if config.SuffixSei {
			au = append(au, nalu(h2645.H265NaluTypeSeiSuffix, 0, userDataSei(i)))
		}
		for j, n := range au {
			s.Data = h2645.AppendAnnexb(s.Data, n, j == 0 || h2645.H265ParseNaluType(n[0]) >= h2645.H265NaluTypeVps && h2645.H265ParseNaluType(n[0]) <= h2645.H265NaluTypePps)
		}
		s.Pictures = append(s.Pictures, pic)
	}
	return s
}

// AccessUnits 按帧划分的nalu（不包含start code），只包含参数集和slice，用于封装TS等容器
func (s *Stream) AccessUnits() [][][]byte {
	var out [][][]byte
	for _, pic := range s.Pictures {
		var au [][]byte
		if h2645.H265IsIrapNalu(pic.NaluType) {
			au = append(au, s.Vps, s.Sps, s.Pps)
		}
		for _, seg := range pic.Segments {
			au = append(au, seg.Nalu)
		}
		out = append(out, au)
	}
	return out
}

func (s *Stream) buildPicture(rnd *rand.Rand, frameIdx int, idr bool, pocLsb uint32) Picture {
	c := &s.Config
	pic := Picture{
		NaluType: h2645.H265NaluTypeSliceTrailR,
		PocLsb:   pocLsb,
	}
	if idr {
		pic.NaluType = h2645.H265NaluTypeSliceIdr
		pic.PocLsb = 0
	}

	// 按CTU行划分slice segment
	rows := c.heightInCtbs()
	nseg := uint32(c.SegmentsPerPicture)
	if nseg > rows {
		nseg = rows
	}
	for k := uint32(0); k < nseg; k++ {
		rowStart := k * rows / nseg
		rowEnd := (k + 1) * rows / nseg
		seg := Segment{
			Address:   rowStart * c.widthInCtbs(),
			Dependent: k > 0 && c.DependentSlices,
		}
		nsub := 1
		if c.Wpp {
			nsub = int(rowEnd - rowStart)
		}
		for j := 0; j < nsub; j++ {
			seg.Substreams = append(seg.Substreams, randomSubstream(rnd))
		}

		header := s.buildSliceHeader(frameIdx, pic, seg)
		rbsp := append([]byte{}, header...)
		for _, sub := range seg.Substreams {
			rbsp = append(rbsp, sub...)
		}
		seg.Nalu = nalu(pic.NaluType, 0, rbsp)
		pic.Segments = append(pic.Segments, seg)
	}
	return pic
}

func (s *Stream) buildSliceHeader(frameIdx int, pic Picture, seg Segment) []byte {
	c := &s.Config
	idr := pic.NaluType == h2645.H265NaluTypeSliceIdr
	w := hevc.NewBitWriter(64)

	w.WriteFlag(seg.Address == 0) // first_slice_segment_in_pic_flag
	if idr {
		w.WriteFlag(false) // no_output_of_prior_pics_flag
	}
	w.WriteUe(c.PpsId)
	if seg.Address != 0 {
		if c.DependentSlices {
			w.WriteFlag(seg.Dependent)
		}
		w.WriteBits(ceilLog2(c.widthInCtbs()*c.heightInCtbs()), seg.Address)
	}

	if !seg.Dependent {
		if idr {
			w.WriteUe(hevc.SliceTypeI)
		} else {
			w.WriteUe(hevc.SliceTypeP)
		}

		numPicTotalCurr := 0
		if !idr {
			w.WriteBits(log2MaxPocLsb, pic.PocLsb)
			// 奇数帧使用sps中的第二个rps（两个参考帧），偶数帧在slice header中携带rps
			if frameIdx%2 == 1 {
				w.WriteFlag(true)
				w.WriteBits(ceilLog2(numStRps), 1)
				numPicTotalCurr = 2
			} else {
				w.WriteFlag(false)
				w.WriteFlag(false) // inter_ref_pic_set_prediction_flag
				w.WriteUe(1)       // num_negative_pics
				w.WriteUe(0)       // num_positive_pics
				w.WriteUe(0)       // delta_poc_s0_minus1
				w.WriteFlag(true)  // used_by_curr_pic_s0_flag
				numPicTotalCurr = 1
			}
			w.WriteFlag(true) // slice_temporal_mvp_enabled_flag
		}
		if c.Sao {
			w.WriteFlag(true)
			w.WriteFlag(frameIdx%2 == 0)
		}
		if !idr {
			w.WriteFlag(false) // num_ref_idx_active_override_flag
			if numPicTotalCurr > 1 {
				w.WriteFlag(true) // ref_pic_list_modification_flag_l0
				w.WriteBits(ceilLog2(uint32(numPicTotalCurr)), 1)
			}
			w.WriteFlag(false) // cabac_init_flag
			w.WriteUe(0)       // five_minus_max_num_merge_cand
		}
		w.WriteSe(int32(frameIdx%7) - 3) // slice_qp_delta
		w.WriteFlag(false)               // deblocking_filter_override_flag
		if c.LoopFilterAcrossSlices {
			w.WriteFlag(frameIdx%3 != 0) // slice_loop_filter_across_slices_enabled_flag
		}
	}

	if c.Wpp || c.TilesEnabled {
		w.WriteUe(uint32(len(seg.Substreams) - 1))
		if len(seg.Substreams) > 1 {
			var maxOff uint32
			offsets := make([]uint32, len(seg.Substreams)-1)
			for i := range offsets {
				offsets[i] = uint32(len(h2645.InsertEmulationPrevention(seg.Substreams[i])))
				if offsets[i]-1 > maxOff {
					maxOff = offsets[i] - 1
				}
			}
			n := uint(bits.Len32(maxOff))
			if n == 0 {
				n = 1
			}
			w.WriteUe(uint32(n - 1))
			for _, off := range offsets {
				w.WriteBits(n, off-1)
			}
		}
	}
	w.WriteTrailingBits()
	return w.Bytes()
}

func buildPtl(w *hevc.BitWriter, c *StreamConfig) {
	w.WriteBits(2, 0) // general_profile_space
	w.WriteFlag(false)
	w.WriteBits(5, uint32(c.ProfileIdc))
	w.WriteBits(32, 1<<(31-uint32(c.ProfileIdc)))
	w.WriteFlag(true)  // general_progressive_source_flag
	w.WriteFlag(false) // general_interlaced_source_flag
	w.WriteFlag(false) // general_non_packed_constraint_flag
	w.WriteFlag(true)  // general_frame_only_constraint_flag
	w.WriteBits(32, 0)
	w.WriteBits(12, 0)
	w.WriteBits(8, uint32(c.LevelIdc))
}

func buildVps(c *StreamConfig) []byte {
	w := hevc.NewBitWriter(32)
	w.WriteBits(4, 0) // vps_video_parameter_set_id
	w.WriteFlag(true) // vps_base_layer_internal_flag
	w.WriteFlag(true) // vps_base_layer_available_flag
	w.WriteBits(6, 0) // vps_max_layers_minus1
	w.WriteBits(3, 0) // vps_max_sub_layers_minus1
	w.WriteFlag(true) // vps_temporal_id_nesting_flag
	w.WriteBits(16, 0xFFFF)
	buildPtl(w, c)
	w.WriteFlag(true) // vps_sub_layer_ordering_info_present_flag
	w.WriteUe(4)
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteBits(6, 0)  // vps_max_layer_id
	w.WriteUe(0)       // vps_num_layer_sets_minus1
	w.WriteFlag(false) // vps_timing_info_present_flag
	w.WriteFlag(false) // vps_extension_flag
	w.WriteTrailingBits()
	return w.Bytes()
}

func buildSps(c *StreamConfig) []byte {
	w := hevc.NewBitWriter(64)
	w.WriteBits(4, 0) // sps_video_parameter_set_id
	w.WriteBits(3, 0) // sps_max_sub_layers_minus1
	w.WriteFlag(true) // sps_temporal_id_nesting_flag
	buildPtl(w, c)
	w.WriteUe(0) // sps_seq_parameter_set_id
	w.WriteUe(1) // chroma_format_idc
	if c.ConformanceWindow {
		// 编码尺寸按CTU对齐，真实尺寸通过裁剪窗口表示，4:2:0下偏移单位为2个亮度采样点
		w.WriteUe(c.widthInCtbs() * c.ctbSize())
		w.WriteUe(c.heightInCtbs() * c.ctbSize())
		w.WriteFlag(true)
		w.WriteUe(0)
		w.WriteUe((c.widthInCtbs()*c.ctbSize() - c.Width) / 2)
		w.WriteUe(0)
		w.WriteUe((c.heightInCtbs()*c.ctbSize() - c.Height) / 2)
	} else {
		w.WriteUe(c.Width)
		w.WriteUe(c.Height)
		w.WriteFlag(false)
	}
	w.WriteUe(0)                 // bit_depth_luma_minus8
	w.WriteUe(0)                 // bit_depth_chroma_minus8
	w.WriteUe(log2MaxPocLsb - 4) // log2_max_pic_order_cnt_lsb_minus4
	w.WriteFlag(true)            // sps_sub_layer_ordering_info_present_flag
	w.WriteUe(4)
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteUe(0)                 // log2_min_luma_coding_block_size_minus3
	w.WriteUe(c.Log2CtbSize - 3) // log2_diff_max_min_luma_coding_block_size
	w.WriteUe(0)                 // log2_min_luma_transform_block_size_minus2
	w.WriteUe(3)                 // log2_diff_max_min_luma_transform_block_size
	w.WriteUe(1)                 // max_transform_hierarchy_depth_inter
	w.WriteUe(1)                 // max_transform_hierarchy_depth_intra
	w.WriteFlag(false)           // scaling_list_enabled_flag
	w.WriteFlag(true)            // amp_enabled_flag
	w.WriteFlag(c.Sao)           // sample_adaptive_offset_enabled_flag
	w.WriteFlag(false)           // pcm_enabled_flag
	w.WriteUe(numStRps)          // num_short_term_ref_pic_sets

	// st_ref_pic_set(0): {-1}
	w.WriteUe(1)
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteFlag(true)
	// st_ref_pic_set(1): 由st_ref_pic_set(0)预测得到{-1, -2}
	w.WriteFlag(true) // inter_ref_pic_set_prediction_flag
	w.WriteFlag(true) // delta_rps_sign
	w.WriteUe(0)      // abs_delta_rps_minus1
	w.WriteFlag(true) // used_by_curr_pic_flag[0]
	w.WriteFlag(true) // used_by_curr_pic_flag[1]

	w.WriteFlag(false) // long_term_ref_pics_present_flag
	w.WriteFlag(true)  // sps_temporal_mvp_enabled_flag
	w.WriteFlag(true)  // strong_intra_smoothing_enabled_flag
	w.WriteFlag(false) // vui_parameters_present_flag
	w.WriteFlag(false) // sps_extension_present_flag
	w.WriteTrailingBits()
	return w.Bytes()
}

func buildPps(c *StreamConfig) []byte {
	w := hevc.NewBitWriter(32)
	w.WriteUe(c.PpsId)
	w.WriteUe(0)                   // pps_seq_parameter_set_id
	w.WriteFlag(c.DependentSlices) // dependent_slice_segments_enabled_flag
	w.WriteFlag(false)             // output_flag_present_flag
	w.WriteBits(3, 0)              // num_extra_slice_header_bits
	w.WriteFlag(true)              // sign_data_hiding_enabled_flag
	w.WriteFlag(true)              // cabac_init_present_flag
	w.WriteUe(0)                   // num_ref_idx_l0_default_active_minus1
	w.WriteUe(0)                   // num_ref_idx_l1_default_active_minus1
	w.WriteSe(0)                   // init_qp_minus26
	w.WriteFlag(false)             // constrained_intra_pred_flag
	w.WriteFlag(false)             // transform_skip_enabled_flag
	w.WriteFlag(true)              // cu_qp_delta_enabled_flag
	w.WriteUe(0)                   // diff_cu_qp_delta_depth
	w.WriteSe(0)                   // pps_cb_qp_offset
	w.WriteSe(0)                   // pps_cr_qp_offset
	w.WriteFlag(false)             // pps_slice_chroma_qp_offsets_present_flag
	w.WriteFlag(false)             // weighted_pred_flag
	w.WriteFlag(false)             // weighted_bipred_flag
	w.WriteFlag(false)             // transquant_bypass_enabled_flag
	w.WriteFlag(c.TilesEnabled)
	w.WriteFlag(c.Wpp)
	if c.TilesEnabled {
		w.WriteUe(1) // num_tile_columns_minus1
		w.WriteUe(0) // num_tile_rows_minus1
		w.WriteFlag(true)
		w.WriteFlag(true)
	}
	w.WriteFlag(c.LoopFilterAcrossSlices)
	w.WriteFlag(true)  // deblocking_filter_control_present_flag
	w.WriteFlag(true)  // deblocking_filter_override_enabled_flag
	w.WriteFlag(false) // pps_deblocking_filter_disabled_flag
	w.WriteSe(0)       // pps_beta_offset_div2
	w.WriteSe(0)       // pps_tc_offset_div2
	w.WriteFlag(false) // pps_scaling_list_data_present_flag
	w.WriteFlag(true)  // lists_modification_present_flag
	w.WriteUe(0)       // log2_parallel_merge_level_minus2
	w.WriteFlag(false) // slice_segment_header_extension_present_flag
	w.WriteFlag(false) // pps_extension_present_flag
	w.WriteTrailingBits()
	return w.Bytes()
}

// userDataSei user_data_unregistered，负载中带上帧序号
func userDataSei(frameIdx int) []byte {
	b := []byte{5, 17}
	for i := 0; i < 16; i++ {
		b = append(b, byte(0xA0+i))
	}
	b = append(b, byte(frameIdx))
	return append(b, 0x80)
}

// randomSubstream 随机字节，中间夹杂0x00 0x00 0x0X序列，最后一个字节非0
func randomSubstream(rnd *rand.Rand) []byte {
	n := 8 + rnd.Intn(48)
	b := make([]byte, n)
	rnd.Read(b)
	for i := 0; i+3 < n; i += 7 + rnd.Intn(9) {
		b[i] = 0
		b[i+1] = 0
		b[i+2] = byte(rnd.Intn(4))
	}
	b[0] |= 0x01
	b[n-1] |= 0x80
	return b
}

// nalu 2字节nalu header + 转义后的rbsp
func nalu(typ uint8, tid uint8, rbsp []byte) []byte {
	out := []byte{typ << 1, tid + 1}
	return append(out, h2645.InsertEmulationPrevention(rbsp)...)
}

func ceilLog2(v uint32) uint {
	if v <= 1 {
		return 0
	}
	return uint(bits.Len32(v - 1))
}
