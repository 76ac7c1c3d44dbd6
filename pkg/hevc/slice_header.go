// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/q191201771/tilemerge/pkg/base"
)

const (
	SliceTypeB uint32 = 0
	SliceTypeP uint32 = 1
	SliceTypeI uint32 = 2
)

// SliceHeader slice_segment_header()
//
// 解析时使用tile码流自己的参数集，编码时使用合并后的参数集。
// 独立slice segment中与合并无关的语法元素不展开保存，编码时按bit原样拷贝。
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.6.1>
type SliceHeader struct {
	NaluType             uint8
	TemporalId           uint8
	SubLayerNonReference bool
	Referenced           bool

	// CountTile 所属tile的序号，由调用方设置
	CountTile int

	FirstSliceSegmentInPicFlag bool
	NoOutputOfPriorPicsFlag    bool
	PpsId                      uint32
	DependentSliceSegmentFlag  bool
	SegmentAddress             uint32

	SliceType                         uint32
	PicOrderCntLsb                    uint32
	SaoLumaFlag                       bool
	SaoChromaFlag                     bool
	DeblockingFilterDisabledFlag      bool
	LoopFilterAcrossSlicesEnabledFlag bool

	// EntryPointOffsets 每个子码流（最后一个除外）转义后的字节数，即offset_len_minus1+1
	EntryPointOffsets []uint32

	// SliceDataOffset slice_segment_data()在rbsp中的起始字节位置
	SliceDataOffset int

	InputPpsId                      uint32
	InputFirstSliceSegmentInPicFlag bool
	InputSegmentAddress             uint32

	src       []byte
	bodyPos   uint // dependent_slice_segment_flag、slice_segment_address之后
	lfPos     uint // slice_loop_filter_across_slices_enabled_flag
	lfPresent bool
	bodyEnd   uint
	extPos    uint
	extEnd    uint

	target sliceTarget
}

// sliceTarget 合并后的pps中影响slice header语法的部分
type sliceTarget struct {
	ppsId                         uint32
	addressBits                   uint
	dependentSliceSegmentsEnabled bool
	loopFilterAcrossSlicesEnabled bool
	entryPointsPresent            bool
	headerExtensionPresent        bool
}

func (sh *SliceHeader) IsIrap() bool {
	return sh.NaluType >= 16 && sh.NaluType <= 23
}

func (sh *SliceHeader) IsIntra() bool {
	return sh.SliceType == SliceTypeI
}

func (sh *SliceHeader) String() string {
	return fmt.Sprintf("type=%d, tile=%d, first=%t, dependent=%t, addr=%d(%d), poc_lsb=%d, slice_type=%d, entry_points=%d",
		sh.NaluType, sh.CountTile, sh.FirstSliceSegmentInPicFlag, sh.DependentSliceSegmentFlag, sh.SegmentAddress,
		sh.InputSegmentAddress, sh.PicOrderCntLsb, sh.SliceType, len(sh.EntryPointOffsets))
}

// DecodeSliceHeader
//
// @param private:   tile码流自己的参数集
// @param composite: 合并后的参数集，PpsId被替换为composite中第一个pps的id
func DecodeSliceHeader(nalu *Nalu, private ParamSetLookup, composite ParamSetLookup) (*SliceHeader, error) {
	sh, err := decodeSliceHeader(nalu, private, composite)
	if err != nil {
		if errors.Is(err, base.ErrUnsupported) || errors.Is(err, base.ErrCorruptBitstream) {
			return nil, err
		}
		return nil, base.NewErrCorruptBitstream("slice header", err)
	}
	return sh, nil
}

func decodeSliceHeader(nalu *Nalu, private ParamSetLookup, composite ParamSetLookup) (*SliceHeader, error) {
	var err error
	sh := &SliceHeader{
		NaluType:             nalu.Type,
		TemporalId:           nalu.TemporalId,
		SubLayerNonReference: nalu.IsSubLayerNonReference(),
		src:                  nalu.Rbsp,
	}
	sh.Referenced = !sh.SubLayerNonReference

	r := NewBitReader(nalu.Rbsp)
	if sh.FirstSliceSegmentInPicFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if sh.IsIrap() {
		if sh.NoOutputOfPriorPicsFlag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
	}
	if sh.InputPpsId, err = r.ReadUeMax(63, "slice_pic_parameter_set_id"); err != nil {
		return nil, err
	}
	pps, err := private.Pps(sh.InputPpsId)
	if err != nil {
		return nil, err
	}
	sps, err := private.Sps(pps.SpsId)
	if err != nil {
		return nil, err
	}
	sh.InputFirstSliceSegmentInPicFlag = sh.FirstSliceSegmentInPicFlag
	if !sh.FirstSliceSegmentInPicFlag {
		if pps.DependentSliceSegmentsEnabledFlag {
			if sh.DependentSliceSegmentFlag, err = r.ReadFlag(); err != nil {
				return nil, err
			}
		}
		if sh.InputSegmentAddress, err = r.ReadBits(ceilLog2(sps.PicSizeInCtbsY())); err != nil {
			return nil, err
		}
		if sh.InputSegmentAddress >= sps.PicSizeInCtbsY() {
			return nil, base.NewErrCorruptBitstream(fmt.Sprintf("slice_segment_address out of range. addr=%d", sh.InputSegmentAddress), nil)
		}
	}
	sh.SegmentAddress = sh.InputSegmentAddress

	sh.bodyPos = r.Pos()
	if !sh.DependentSliceSegmentFlag {
		if err = sh.parseIndependent(r, sps, pps); err != nil {
			return nil, err
		}
	}
	sh.bodyEnd = r.Pos()

	if pps.TilesEnabledFlag || pps.EntropyCodingSyncEnabledFlag {
		n, err := r.ReadUeMax(sps.PicSizeInCtbsY(), "num_entry_point_offsets")
		if err != nil {
			return nil, err
		}
		if n > 0 {
			offLen, err := r.ReadUeMax(31, "offset_len_minus1")
			if err != nil {
				return nil, err
			}
			sh.EntryPointOffsets = make([]uint32, n)
			for i := range sh.EntryPointOffsets {
				v, err := r.ReadBits(uint(offLen) + 1)
				if err != nil {
					return nil, err
				}
				sh.EntryPointOffsets[i] = v + 1
			}
		}
	}

	sh.extPos = r.Pos()
	if pps.SliceSegmentHeaderExtensionPresentFlag {
		n, err := r.ReadUeMax(256, "slice_segment_header_extension_length")
		if err != nil {
			return nil, err
		}
		if err = r.Skip(uint(n) * 8); err != nil {
			return nil, err
		}
	}
	sh.extEnd = r.Pos()

	// byte_alignment()
	one, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}
	if !one {
		return nil, base.NewErrCorruptBitstream("alignment_bit_equal_to_one", nil)
	}
	for r.Pos()%8 != 0 {
		zero, err := r.ReadFlag()
		if err != nil {
			return nil, err
		}
		if zero {
			return nil, base.NewErrCorruptBitstream("alignment_bit_equal_to_zero", nil)
		}
	}
	sh.SliceDataOffset = int(r.Pos() / 8)
	if sh.SliceDataOffset >= len(nalu.Rbsp) {
		return nil, base.NewErrCorruptBitstream("empty slice_segment_data", nil)
	}

	if err = sh.bindComposite(composite); err != nil {
		return nil, err
	}
	return sh, nil
}

func (sh *SliceHeader) parseIndependent(r *BitReader, sps *Sps, pps *Pps) error {
	var err error
	if err = r.Skip(uint(pps.NumExtraSliceHeaderBits)); err != nil {
		return err
	}
	if sh.SliceType, err = r.ReadUeMax(2, "slice_type"); err != nil {
		return err
	}
	if pps.OutputFlagPresentFlag {
		// pic_output_flag
		if err = r.Skip(1); err != nil {
			return err
		}
	}
	if sps.SeparateColourPlaneFlag {
		// colour_plane_id
		if err = r.Skip(2); err != nil {
			return err
		}
	}

	numPicTotalCurr := 0
	tmvp := false
	if !sh.isIdr() {
		if sh.PicOrderCntLsb, err = r.ReadBits(uint(sps.Log2MaxPicOrderCntLsb())); err != nil {
			return err
		}
		if numPicTotalCurr, err = parseSliceRps(r, sps); err != nil {
			return err
		}
		if sps.TemporalMvpEnabledFlag {
			if tmvp, err = r.ReadFlag(); err != nil {
				return err
			}
		}
	}

	if sps.SampleAdaptiveOffsetEnabledFlag {
		if sh.SaoLumaFlag, err = r.ReadFlag(); err != nil {
			return err
		}
		if sps.ChromaArrayType() != 0 {
			if sh.SaoChromaFlag, err = r.ReadFlag(); err != nil {
				return err
			}
		}
	}

	if sh.SliceType == SliceTypeP || sh.SliceType == SliceTypeB {
		if err = sh.parseInter(r, sps, pps, numPicTotalCurr, tmvp); err != nil {
			return err
		}
	}

	// slice_qp_delta
	if _, err = r.ReadSe(); err != nil {
		return err
	}
	if pps.SliceChromaQpOffsetsPresentFlag {
		// slice_cb_qp_offset, slice_cr_qp_offset
		if _, err = r.ReadSe(); err != nil {
			return err
		}
		if _, err = r.ReadSe(); err != nil {
			return err
		}
	}
	if pps.ChromaQpOffsetListEnabledFlag {
		// cu_chroma_qp_offset_enabled_flag
		if err = r.Skip(1); err != nil {
			return err
		}
	}

	override := false
	if pps.DeblockingFilterOverrideEnabledFlag {
		if override, err = r.ReadFlag(); err != nil {
			return err
		}
	}
	sh.DeblockingFilterDisabledFlag = pps.PpsDeblockingFilterDisabledFlag
	if override {
		if sh.DeblockingFilterDisabledFlag, err = r.ReadFlag(); err != nil {
			return err
		}
		if !sh.DeblockingFilterDisabledFlag {
			// slice_beta_offset_div2, slice_tc_offset_div2
			if _, err = r.ReadSe(); err != nil {
				return err
			}
			if _, err = r.ReadSe(); err != nil {
				return err
			}
		}
	}

	// 不存在时取pps中的值
	sh.LoopFilterAcrossSlicesEnabledFlag = pps.LoopFilterAcrossSlicesEnabledFlag
	if pps.LoopFilterAcrossSlicesEnabledFlag && sh.loopFilterFlagNeeded() {
		sh.lfPos = r.Pos()
		sh.lfPresent = true
		if sh.LoopFilterAcrossSlicesEnabledFlag, err = r.ReadFlag(); err != nil {
			return err
		}
	}
	return nil
}

// parseSliceRps short_term_ref_pic_set以及long term部分，返回NumPicTotalCurr
func parseSliceRps(r *BitReader, sps *Sps) (int, error) {
	var rps *ShortTermRps
	num := uint32(len(sps.StRps))
	spsFlag, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if !spsFlag {
		parsed, err := parseShortTermRps(r, num, num, sps.StRps)
		if err != nil {
			return 0, err
		}
		rps = &parsed
	} else {
		if num == 0 {
			return 0, base.NewErrCorruptBitstream("short_term_ref_pic_set_sps_flag without sps sets", nil)
		}
		idx, err := r.ReadBits(ceilLog2(num))
		if err != nil {
			return 0, err
		}
		if idx >= num {
			return 0, base.NewErrCorruptBitstream("short_term_ref_pic_set_idx", nil)
		}
		rps = &sps.StRps[idx]
	}
	total := rps.NumUsedByCurr()

	if !sps.LongTermRefPicsPresentFlag {
		return total, nil
	}
	numLtSps := uint32(0)
	numLtRefPicsSps := uint32(len(sps.UsedByCurrPicLtSpsFlag))
	if numLtRefPicsSps > 0 {
		if numLtSps, err = r.ReadUeMax(numLtRefPicsSps, "num_long_term_sps"); err != nil {
			return 0, err
		}
	}
	numLtPics, err := r.ReadUeMax(maxDpbSize, "num_long_term_pics")
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < numLtSps+numLtPics; i++ {
		if i < numLtSps {
			ltIdx := uint32(0)
			if numLtRefPicsSps > 1 {
				if ltIdx, err = r.ReadBits(ceilLog2(numLtRefPicsSps)); err != nil {
					return 0, err
				}
				if ltIdx >= numLtRefPicsSps {
					return 0, base.NewErrCorruptBitstream("lt_idx_sps", nil)
				}
			}
			if sps.UsedByCurrPicLtSpsFlag[ltIdx] {
				total++
			}
		} else {
			// poc_lsb_lt
			if err = r.Skip(uint(sps.Log2MaxPicOrderCntLsb())); err != nil {
				return 0, err
			}
			used, err := r.ReadFlag()
			if err != nil {
				return 0, err
			}
			if used {
				total++
			}
		}
		msbPresent, err := r.ReadFlag()
		if err != nil {
			return 0, err
		}
		if msbPresent {
			// delta_poc_msb_cycle_lt
			if _, err = r.ReadUe(); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func (sh *SliceHeader) parseInter(r *BitReader, sps *Sps, pps *Pps, numPicTotalCurr int, tmvp bool) error {
	var err error
	isB := sh.SliceType == SliceTypeB
	l0 := pps.NumRefIdxL0DefaultActiveMinus1
	l1 := pps.NumRefIdxL1DefaultActiveMinus1

	override, err := r.ReadFlag()
	if err != nil {
		return err
	}
	if override {
		if l0, err = r.ReadUeMax(14, "num_ref_idx_l0_active_minus1"); err != nil {
			return err
		}
		if isB {
			if l1, err = r.ReadUeMax(14, "num_ref_idx_l1_active_minus1"); err != nil {
				return err
			}
		}
	}

	if pps.ListsModificationPresentFlag && numPicTotalCurr > 1 {
		// ref_pic_lists_modification()
		n := ceilLog2(uint32(numPicTotalCurr))
		lists := []uint32{l0}
		if isB {
			lists = append(lists, l1)
		}
		for _, active := range lists {
			flag, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if flag {
				if err = r.Skip(n * uint(active+1)); err != nil {
					return err
				}
			}
		}
	}

	if isB {
		// mvd_l1_zero_flag
		if err = r.Skip(1); err != nil {
			return err
		}
	}
	if pps.CabacInitPresentFlag {
		// cabac_init_flag
		if err = r.Skip(1); err != nil {
			return err
		}
	}
	if tmvp {
		fromL0 := true
		if isB {
			if fromL0, err = r.ReadFlag(); err != nil {
				return err
			}
		}
		if (fromL0 && l0 > 0) || (!fromL0 && l1 > 0) {
			// collocated_ref_idx
			if _, err = r.ReadUe(); err != nil {
				return err
			}
		}
	}
	if (pps.WeightedPredFlag && sh.SliceType == SliceTypeP) || (pps.WeightedBipredFlag && isB) {
		if err = skipPredWeightTable(r, sps, isB, l0, l1); err != nil {
			return err
		}
	}
	// five_minus_max_num_merge_cand
	_, err = r.ReadUeMax(4, "five_minus_max_num_merge_cand")
	return err
}

// skipPredWeightTable pred_weight_table()
//
// 单层码流中参考帧与当前帧的poc一定不同，所以每个参考帧都有luma/chroma weight flag
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.6.3>
func skipPredWeightTable(r *BitReader, sps *Sps, isB bool, l0, l1 uint32) error {
	if _, err := r.ReadUeMax(7, "luma_log2_weight_denom"); err != nil {
		return err
	}
	chroma := sps.ChromaArrayType() != 0
	if chroma {
		if _, err := r.ReadSe(); err != nil {
			return err
		}
	}
	lists := []uint32{l0}
	if isB {
		lists = append(lists, l1)
	}
	for _, active := range lists {
		n := int(active) + 1
		lumaFlags := make([]bool, n)
		chromaFlags := make([]bool, n)
		for i := 0; i < n; i++ {
			v, err := r.ReadFlag()
			if err != nil {
				return err
			}
			lumaFlags[i] = v
		}
		if chroma {
			for i := 0; i < n; i++ {
				v, err := r.ReadFlag()
				if err != nil {
					return err
				}
				chromaFlags[i] = v
			}
		}
		for i := 0; i < n; i++ {
			m := 0
			if lumaFlags[i] {
				m += 2
			}
			if chromaFlags[i] {
				m += 4
			}
			for j := 0; j < m; j++ {
				if _, err := r.ReadSe(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (sh *SliceHeader) bindComposite(composite ParamSetLookup) error {
	pps, ok := composite.FirstPps()
	if !ok {
		return base.NewErrNotFound("composite pps", 0)
	}
	sps, err := composite.Sps(pps.SpsId)
	if err != nil {
		return err
	}
	sh.PpsId = pps.Id
	sh.target = sliceTarget{
		ppsId:                         pps.Id,
		addressBits:                   ceilLog2(sps.PicSizeInCtbsY()),
		dependentSliceSegmentsEnabled: pps.DependentSliceSegmentsEnabledFlag,
		loopFilterAcrossSlicesEnabled: pps.LoopFilterAcrossSlicesEnabledFlag,
		entryPointsPresent:            pps.TilesEnabledFlag || pps.EntropyCodingSyncEnabledFlag,
		headerExtensionPresent:        pps.SliceSegmentHeaderExtensionPresentFlag,
	}
	return nil
}

func (sh *SliceHeader) isIdr() bool {
	return sh.NaluType == 19 || sh.NaluType == 20
}

func (sh *SliceHeader) loopFilterFlagNeeded() bool {
	return sh.SaoLumaFlag || sh.SaoChromaFlag || !sh.DeblockingFilterDisabledFlag
}

// EncodeSliceHeader 生成slice header的rbsp，以byte_alignment()结尾，不包含slice data
func EncodeSliceHeader(sh *SliceHeader) ([]byte, error) {
	if sh.src == nil {
		return nil, base.NewErrCorruptBitstream("slice header not decoded", nil)
	}
	if sh.FirstSliceSegmentInPicFlag && sh.DependentSliceSegmentFlag {
		return nil, base.NewErrCorruptBitstream("first slice segment is dependent", nil)
	}
	t := &sh.target

	w := NewBitWriter(sh.SliceDataOffset + 16 + 5*len(sh.EntryPointOffsets))
	w.WriteFlag(sh.FirstSliceSegmentInPicFlag)
	if sh.IsIrap() {
		w.WriteFlag(sh.NoOutputOfPriorPicsFlag)
	}
	w.WriteUe(sh.PpsId)
	if !sh.FirstSliceSegmentInPicFlag {
		if t.dependentSliceSegmentsEnabled {
			w.WriteFlag(sh.DependentSliceSegmentFlag)
		} else if sh.DependentSliceSegmentFlag {
			return nil, base.NewErrCorruptBitstream("dependent slice segment while disabled", nil)
		}
		if t.addressBits < 32 && sh.SegmentAddress >= 1<<t.addressBits {
			return nil, base.NewErrCorruptBitstream(fmt.Sprintf("slice_segment_address out of range. addr=%d", sh.SegmentAddress), nil)
		}
		w.WriteBits(t.addressBits, sh.SegmentAddress)
	}

	if !sh.DependentSliceSegmentFlag {
		if sh.lfPresent {
			w.CopyBits(sh.src, sh.bodyPos, sh.lfPos)
		} else {
			w.CopyBits(sh.src, sh.bodyPos, sh.bodyEnd)
		}
		if t.loopFilterAcrossSlicesEnabled && sh.loopFilterFlagNeeded() {
			w.WriteFlag(sh.LoopFilterAcrossSlicesEnabledFlag)
		}
	}

	if t.entryPointsPresent {
		w.WriteUe(uint32(len(sh.EntryPointOffsets)))
		if len(sh.EntryPointOffsets) > 0 {
			var maxOff uint32
			for _, off := range sh.EntryPointOffsets {
				if off == 0 {
					return nil, base.NewErrCorruptBitstream("zero entry point offset", nil)
				}
				if off-1 > maxOff {
					maxOff = off - 1
				}
			}
			n := uint(bits.Len32(maxOff))
			if n == 0 {
				n = 1
			}
			w.WriteUe(uint32(n - 1))
			for _, off := range sh.EntryPointOffsets {
				w.WriteBits(n, off-1)
			}
		}
	} else if len(sh.EntryPointOffsets) > 0 {
		return nil, base.NewErrCorruptBitstream("entry points without tiles or wpp", nil)
	}

	if t.headerExtensionPresent {
		w.CopyBits(sh.src, sh.extPos, sh.extEnd)
	}
	w.WriteTrailingBits()
	return w.Bytes(), nil
}

// ceilLog2 Ceil(Log2(v))，v<=1时为0
func ceilLog2(v uint32) uint {
	if v <= 1 {
		return 0
	}
	return uint(bits.Len32(v - 1))
}
