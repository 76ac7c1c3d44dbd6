// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"fmt"

	"github.com/q191201771/tilemerge/pkg/base"
)

// Sps 解析到strong_intra_smoothing_enabled_flag，vui以及扩展部分作为不透明数据保留
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.2.2>
type Sps struct {
	VpsId                 uint32
	MaxSubLayersMinus1    uint8
	TemporalIdNestingFlag bool
	Ptl                   ProfileTierLevel

	Id                      uint32
	ChromaFormatIdc         uint32
	SeparateColourPlaneFlag bool
	PicWidthInLumaSamples   uint32
	PicHeightInLumaSamples  uint32
	ConformanceWindowFlag   bool
	ConfWinLeftOffset       uint32
	ConfWinRightOffset      uint32
	ConfWinTopOffset        uint32
	ConfWinBottomOffset     uint32

	BitDepthLumaMinus8                   uint32
	BitDepthChromaMinus8                 uint32
	Log2MaxPicOrderCntLsbMinus4          uint32
	Log2MinLumaCodingBlockSizeMinus3     uint32
	Log2DiffMaxMinLumaCodingBlockSize    uint32
	Log2MinLumaTransformBlockSizeMinus2  uint32
	Log2DiffMaxMinLumaTransformBlockSize uint32
	ScalingListEnabledFlag               bool
	AmpEnabledFlag                       bool
	SampleAdaptiveOffsetEnabledFlag      bool
	PcmEnabledFlag                       bool

	StRps []ShortTermRps // 长度即num_short_term_ref_pic_sets

	LongTermRefPicsPresentFlag bool
	UsedByCurrPicLtSpsFlag     []bool // 长度即num_long_term_ref_pics_sps

	TemporalMvpEnabledFlag          bool
	StrongIntraSmoothingEnabledFlag bool

	rbsp []byte

	sizePos  uint // pic_width_in_luma_samples
	toolsPos uint // bit_depth_luma_minus8
	toolsEnd uint // vui_parameters_present_flag
}

func DecodeSps(rbsp []byte) (*Sps, error) {
	sps, err := decodeSps(rbsp)
	if err != nil {
		return nil, base.NewErrCorruptBitstream("sps", err)
	}
	return sps, nil
}

func decodeSps(rbsp []byte) (*Sps, error) {
	var (
		sps  Sps
		v    uint32
		flag bool
		err  error
	)
	r := NewBitReader(rbsp)

	if sps.VpsId, err = r.ReadBits(4); err != nil {
		return nil, err
	}
	if v, err = r.ReadBits(3); err != nil {
		return nil, err
	}
	sps.MaxSubLayersMinus1 = uint8(v)
	if sps.TemporalIdNestingFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.Ptl, err = parseProfileTierLevel(r, sps.MaxSubLayersMinus1); err != nil {
		return nil, err
	}
	if sps.Id, err = r.ReadUeMax(15, "sps_seq_parameter_set_id"); err != nil {
		return nil, err
	}
	if sps.ChromaFormatIdc, err = r.ReadUeMax(3, "chroma_format_idc"); err != nil {
		return nil, err
	}
	if sps.ChromaFormatIdc == 3 {
		if sps.SeparateColourPlaneFlag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
	}

	sps.sizePos = r.Pos()
	if sps.PicWidthInLumaSamples, err = r.ReadUe(); err != nil {
		return nil, err
	}
	if sps.PicHeightInLumaSamples, err = r.ReadUe(); err != nil {
		return nil, err
	}
	if sps.PicWidthInLumaSamples == 0 || sps.PicHeightInLumaSamples == 0 {
		return nil, fmt.Errorf("invalid picture size. %dx%d", sps.PicWidthInLumaSamples, sps.PicHeightInLumaSamples)
	}
	if sps.ConformanceWindowFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.ConformanceWindowFlag {
		for _, p := range []*uint32{&sps.ConfWinLeftOffset, &sps.ConfWinRightOffset, &sps.ConfWinTopOffset, &sps.ConfWinBottomOffset} {
			if *p, err = r.ReadUe(); err != nil {
				return nil, err
			}
		}
	}

	sps.toolsPos = r.Pos()
	if sps.BitDepthLumaMinus8, err = r.ReadUeMax(8, "bit_depth_luma_minus8"); err != nil {
		return nil, err
	}
	if sps.BitDepthChromaMinus8, err = r.ReadUeMax(8, "bit_depth_chroma_minus8"); err != nil {
		return nil, err
	}
	if sps.Log2MaxPicOrderCntLsbMinus4, err = r.ReadUeMax(12, "log2_max_pic_order_cnt_lsb_minus4"); err != nil {
		return nil, err
	}

	// sps_sub_layer_ordering_info_present_flag
	if flag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	start := sps.MaxSubLayersMinus1
	if flag {
		start = 0
	}
	for i := start; i <= sps.MaxSubLayersMinus1; i++ {
		// sps_max_dec_pic_buffering_minus1, sps_max_num_reorder_pics, sps_max_latency_increase_plus1
		for j := 0; j < 3; j++ {
			if _, err = r.ReadUe(); err != nil {
				return nil, err
			}
		}
	}

	if sps.Log2MinLumaCodingBlockSizeMinus3, err = r.ReadUeMax(3, "log2_min_luma_coding_block_size_minus3"); err != nil {
		return nil, err
	}
	if sps.Log2DiffMaxMinLumaCodingBlockSize, err = r.ReadUeMax(3, "log2_diff_max_min_luma_coding_block_size"); err != nil {
		return nil, err
	}
	if sps.CtbLog2SizeY() > 6 {
		return nil, fmt.Errorf("invalid ctb size. log2=%d", sps.CtbLog2SizeY())
	}
	if sps.Log2MinLumaTransformBlockSizeMinus2, err = r.ReadUe(); err != nil {
		return nil, err
	}
	if sps.Log2DiffMaxMinLumaTransformBlockSize, err = r.ReadUe(); err != nil {
		return nil, err
	}
	// max_transform_hierarchy_depth_inter, max_transform_hierarchy_depth_intra
	for j := 0; j < 2; j++ {
		if _, err = r.ReadUe(); err != nil {
			return nil, err
		}
	}

	if sps.ScalingListEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.ScalingListEnabledFlag {
		// sps_scaling_list_data_present_flag
		if flag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
		if flag {
			if err = skipScalingListData(r); err != nil {
				return nil, err
			}
		}
	}

	if sps.AmpEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.SampleAdaptiveOffsetEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.PcmEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.PcmEnabledFlag {
		// pcm_sample_bit_depth_luma_minus1, pcm_sample_bit_depth_chroma_minus1
		if err = r.Skip(8); err != nil {
			return nil, err
		}
		// log2_min_pcm_luma_coding_block_size_minus3, log2_diff_max_min_pcm_luma_coding_block_size
		for j := 0; j < 2; j++ {
			if _, err = r.ReadUe(); err != nil {
				return nil, err
			}
		}
		// pcm_loop_filter_disabled_flag
		if err = r.Skip(1); err != nil {
			return nil, err
		}
	}

	numStRps, err := r.ReadUeMax(64, "num_short_term_ref_pic_sets")
	if err != nil {
		return nil, err
	}
	sps.StRps = make([]ShortTermRps, 0, numStRps)
	for i := uint32(0); i < numStRps; i++ {
		rps, err := parseShortTermRps(r, i, numStRps, sps.StRps)
		if err != nil {
			return nil, err
		}
		sps.StRps = append(sps.StRps, rps)
	}

	if sps.LongTermRefPicsPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.LongTermRefPicsPresentFlag {
		numLtSps, err := r.ReadUeMax(32, "num_long_term_ref_pics_sps")
		if err != nil {
			return nil, err
		}
		sps.UsedByCurrPicLtSpsFlag = make([]bool, numLtSps)
		for i := uint32(0); i < numLtSps; i++ {
			// lt_ref_pic_poc_lsb_sps
			if err = r.Skip(uint(sps.Log2MaxPicOrderCntLsb())); err != nil {
				return nil, err
			}
			if sps.UsedByCurrPicLtSpsFlag[i], err = r.ReadFlag(); err != nil {
				return nil, err
			}
		}
	}

	if sps.TemporalMvpEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sps.StrongIntraSmoothingEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	sps.toolsEnd = r.Pos()

	if _, err = rbspStopBitPos(rbsp); err != nil {
		return nil, err
	}
	sps.rbsp = rbsp
	return &sps, nil
}

func (sps *Sps) Clone() *Sps {
	c := *sps
	return &c
}

func (sps *Sps) Rbsp() []byte {
	return sps.rbsp
}

func (sps *Sps) Log2MaxPicOrderCntLsb() uint32 {
	return sps.Log2MaxPicOrderCntLsbMinus4 + 4
}

func (sps *Sps) CtbLog2SizeY() uint32 {
	return sps.Log2MinLumaCodingBlockSizeMinus3 + 3 + sps.Log2DiffMaxMinLumaCodingBlockSize
}

func (sps *Sps) CtbSizeY() uint32 {
	return 1 << sps.CtbLog2SizeY()
}

func (sps *Sps) MinCbSizeY() uint32 {
	return 1 << (sps.Log2MinLumaCodingBlockSizeMinus3 + 3)
}

func (sps *Sps) PicWidthInCtbsY() uint32 {
	return (sps.PicWidthInLumaSamples + sps.CtbSizeY() - 1) / sps.CtbSizeY()
}

func (sps *Sps) PicHeightInCtbsY() uint32 {
	return (sps.PicHeightInLumaSamples + sps.CtbSizeY() - 1) / sps.CtbSizeY()
}

func (sps *Sps) PicSizeInCtbsY() uint32 {
	return sps.PicWidthInCtbsY() * sps.PicHeightInCtbsY()
}

func (sps *Sps) ChromaArrayType() uint32 {
	if sps.SeparateColourPlaneFlag {
		return 0
	}
	return sps.ChromaFormatIdc
}

// SameCodingTools 两个sps除了id、尺寸、裁剪窗口、level以及vui之外，是否完全一致
//
// 这部分决定了slice header以及slice data的解析方式，不一致的码流无法合并
func (sps *Sps) SameCodingTools(o *Sps) bool {
	if sps.ChromaFormatIdc != o.ChromaFormatIdc || sps.SeparateColourPlaneFlag != o.SeparateColourPlaneFlag {
		return false
	}
	if sps.Ptl.GeneralProfileIdc != o.Ptl.GeneralProfileIdc || sps.MaxSubLayersMinus1 != o.MaxSubLayersMinus1 {
		return false
	}
	return bitsEqual(sps.rbsp, sps.toolsPos, sps.toolsEnd, o.rbsp, o.toolsPos, o.toolsEnd)
}

// EncodeSps 重新生成rbsp，修改过的字段为尺寸、裁剪窗口以及general_level_idc，其余部分按bit拷贝
func EncodeSps(sps *Sps) ([]byte, error) {
	if sps.rbsp == nil {
		return nil, base.NewErrCorruptBitstream("sps not decoded", nil)
	}
	stop, err := rbspStopBitPos(sps.rbsp)
	if err != nil {
		return nil, err
	}

	w := NewBitWriter(len(sps.rbsp) + 16)
	w.CopyBits(sps.rbsp, 0, sps.Ptl.levelPos)
	w.WriteBits(8, uint32(sps.Ptl.GeneralLevelIdc))
	w.CopyBits(sps.rbsp, sps.Ptl.levelPos+8, sps.sizePos)
	w.WriteUe(sps.PicWidthInLumaSamples)
	w.WriteUe(sps.PicHeightInLumaSamples)
	w.WriteFlag(sps.ConformanceWindowFlag)
	if sps.ConformanceWindowFlag {
		w.WriteUe(sps.ConfWinLeftOffset)
		w.WriteUe(sps.ConfWinRightOffset)
		w.WriteUe(sps.ConfWinTopOffset)
		w.WriteUe(sps.ConfWinBottomOffset)
	}
	w.CopyBits(sps.rbsp, sps.toolsPos, stop)
	w.WriteTrailingBits()
	return w.Bytes(), nil
}
