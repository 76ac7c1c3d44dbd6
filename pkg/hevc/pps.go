// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"github.com/q191201771/tilemerge/pkg/base"
)

// Pps
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.2.3>
type Pps struct {
	Id    uint32
	SpsId uint32

	DependentSliceSegmentsEnabledFlag bool
	OutputFlagPresentFlag             bool
	NumExtraSliceHeaderBits           uint32
	SignDataHidingEnabledFlag         bool
	CabacInitPresentFlag              bool
	NumRefIdxL0DefaultActiveMinus1    uint32
	NumRefIdxL1DefaultActiveMinus1    uint32
	InitQpMinus26                     int32
	ConstrainedIntraPredFlag          bool
	TransformSkipEnabledFlag          bool
	CuQpDeltaEnabledFlag              bool
	DiffCuQpDeltaDepth                uint32
	CbQpOffset                        int32
	CrQpOffset                        int32
	SliceChromaQpOffsetsPresentFlag   bool
	WeightedPredFlag                  bool
	WeightedBipredFlag                bool
	TransquantBypassEnabledFlag       bool

	TilesEnabledFlag                 bool
	EntropyCodingSyncEnabledFlag     bool
	NumTileColumnsMinus1             uint32
	NumTileRowsMinus1                uint32
	UniformSpacingFlag               bool
	ColumnWidthMinus1                []uint32
	RowHeightMinus1                  []uint32
	LoopFilterAcrossTilesEnabledFlag bool

	LoopFilterAcrossSlicesEnabledFlag bool

	DeblockingFilterControlPresentFlag  bool
	DeblockingFilterOverrideEnabledFlag bool
	PpsDeblockingFilterDisabledFlag     bool
	BetaOffsetDiv2                      int32
	TcOffsetDiv2                        int32

	ScalingListDataPresentFlag             bool
	ListsModificationPresentFlag           bool
	Log2ParallelMergeLevelMinus2           uint32
	SliceSegmentHeaderExtensionPresentFlag bool

	ExtensionPresentFlag          bool
	RangeExtensionFlag            bool
	ChromaQpOffsetListEnabledFlag bool

	rbsp []byte

	codingPos uint // dependent_slice_segments_enabled_flag
	tilesPos  uint // tiles_enabled_flag
	tailPos   uint // deblocking_filter_control_present_flag
}

func DecodePps(rbsp []byte) (*Pps, error) {
	pps, err := decodePps(rbsp)
	if err != nil {
		return nil, base.NewErrCorruptBitstream("pps", err)
	}
	return pps, nil
}

func decodePps(rbsp []byte) (*Pps, error) {
	var (
		pps Pps
		err error
	)
	r := NewBitReader(rbsp)

	if pps.Id, err = r.ReadUeMax(63, "pps_pic_parameter_set_id"); err != nil {
		return nil, err
	}
	if pps.SpsId, err = r.ReadUeMax(15, "pps_seq_parameter_set_id"); err != nil {
		return nil, err
	}

	pps.codingPos = r.Pos()
	if pps.DependentSliceSegmentsEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.OutputFlagPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.NumExtraSliceHeaderBits, err = r.ReadBits(3); err != nil {
		return nil, err
	}
	if pps.SignDataHidingEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.CabacInitPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.NumRefIdxL0DefaultActiveMinus1, err = r.ReadUeMax(14, "num_ref_idx_l0_default_active_minus1"); err != nil {
		return nil, err
	}
	if pps.NumRefIdxL1DefaultActiveMinus1, err = r.ReadUeMax(14, "num_ref_idx_l1_default_active_minus1"); err != nil {
		return nil, err
	}
	if pps.InitQpMinus26, err = r.ReadSe(); err != nil {
		return nil, err
	}
	if pps.ConstrainedIntraPredFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.TransformSkipEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.CuQpDeltaEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.CuQpDeltaEnabledFlag {
		if pps.DiffCuQpDeltaDepth, err = r.ReadUe(); err != nil {
			return nil, err
		}
	}
	if pps.CbQpOffset, err = r.ReadSe(); err != nil {
		return nil, err
	}
	if pps.CrQpOffset, err = r.ReadSe(); err != nil {
		return nil, err
	}
	if pps.SliceChromaQpOffsetsPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.WeightedPredFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.WeightedBipredFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.TransquantBypassEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}

	pps.tilesPos = r.Pos()
	if pps.TilesEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.EntropyCodingSyncEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.TilesEnabledFlag {
		if pps.NumTileColumnsMinus1, err = r.ReadUeMax(19, "num_tile_columns_minus1"); err != nil {
			return nil, err
		}
		if pps.NumTileRowsMinus1, err = r.ReadUeMax(21, "num_tile_rows_minus1"); err != nil {
			return nil, err
		}
		if pps.UniformSpacingFlag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
		if !pps.UniformSpacingFlag {
			pps.ColumnWidthMinus1 = make([]uint32, pps.NumTileColumnsMinus1)
			for i := range pps.ColumnWidthMinus1 {
				if pps.ColumnWidthMinus1[i], err = r.ReadUe(); err != nil {
					return nil, err
				}
			}
			pps.RowHeightMinus1 = make([]uint32, pps.NumTileRowsMinus1)
			for i := range pps.RowHeightMinus1 {
				if pps.RowHeightMinus1[i], err = r.ReadUe(); err != nil {
					return nil, err
				}
			}
		}
		if pps.LoopFilterAcrossTilesEnabledFlag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
	}
	if pps.LoopFilterAcrossSlicesEnabledFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}

	pps.tailPos = r.Pos()
	if pps.DeblockingFilterControlPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.DeblockingFilterControlPresentFlag {
		if pps.DeblockingFilterOverrideEnabledFlag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
		if pps.PpsDeblockingFilterDisabledFlag, err = r.ReadFlag(); err != nil {
			return nil, err
		}
		if !pps.PpsDeblockingFilterDisabledFlag {
			if pps.BetaOffsetDiv2, err = r.ReadSe(); err != nil {
				return nil, err
			}
			if pps.TcOffsetDiv2, err = r.ReadSe(); err != nil {
				return nil, err
			}
		}
	}
	if pps.ScalingListDataPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.ScalingListDataPresentFlag {
		if err = skipScalingListData(r); err != nil {
			return nil, err
		}
	}
	if pps.ListsModificationPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.Log2ParallelMergeLevelMinus2, err = r.ReadUe(); err != nil {
		return nil, err
	}
	if pps.SliceSegmentHeaderExtensionPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.ExtensionPresentFlag, err = r.ReadFlag(); err != nil {
		return nil, err
	}
	if pps.ExtensionPresentFlag {
		if err = pps.parseExtensions(r); err != nil {
			return nil, err
		}
	}

	if _, err = rbspStopBitPos(rbsp); err != nil {
		return nil, err
	}
	pps.rbsp = rbsp
	return &pps, nil
}

func (pps *Pps) parseExtensions(r *BitReader) error {
	var err error
	if pps.RangeExtensionFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	// pps_multilayer_extension_flag, pps_3d_extension_flag, pps_scc_extension_flag
	others, err := r.ReadBits(3)
	if err != nil {
		return err
	}
	if others != 0 {
		return base.NewErrUnsupported("pps multilayer/3d/scc extension")
	}
	// pps_extension_4bits
	if _, err = r.ReadBits(4); err != nil {
		return err
	}
	if !pps.RangeExtensionFlag {
		return nil
	}

	// <ISO_IEC_23008-2.pdf> <7.3.2.3.2> pps_range_extension
	if pps.TransformSkipEnabledFlag {
		// log2_max_transform_skip_block_size_minus2
		if _, err = r.ReadUe(); err != nil {
			return err
		}
	}
	// cross_component_prediction_enabled_flag
	if _, err = r.ReadFlag(); err != nil {
		return err
	}
	if pps.ChromaQpOffsetListEnabledFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	if pps.ChromaQpOffsetListEnabledFlag {
		// diff_cu_chroma_qp_offset_depth
		if _, err = r.ReadUe(); err != nil {
			return err
		}
		n, err := r.ReadUeMax(5, "chroma_qp_offset_list_len_minus1")
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			// cb_qp_offset_list, cr_qp_offset_list
			if _, err = r.ReadSe(); err != nil {
				return err
			}
			if _, err = r.ReadSe(); err != nil {
				return err
			}
		}
	}
	// log2_sao_offset_scale_luma, log2_sao_offset_scale_chroma
	for j := 0; j < 2; j++ {
		if _, err = r.ReadUe(); err != nil {
			return err
		}
	}
	return nil
}

func (pps *Pps) Clone() *Pps {
	c := *pps
	c.ColumnWidthMinus1 = append([]uint32(nil), pps.ColumnWidthMinus1...)
	c.RowHeightMinus1 = append([]uint32(nil), pps.RowHeightMinus1...)
	return &c
}

func (pps *Pps) Rbsp() []byte {
	return pps.rbsp
}

// SameCoding 两个pps除了id、tile划分以及pps_loop_filter_across_slices_enabled_flag之外，是否完全一致
func (pps *Pps) SameCoding(o *Pps) bool {
	if pps.EntropyCodingSyncEnabledFlag != o.EntropyCodingSyncEnabledFlag {
		return false
	}
	if !bitsEqual(pps.rbsp, pps.codingPos, pps.tilesPos, o.rbsp, o.codingPos, o.tilesPos) {
		return false
	}
	ps, err := rbspStopBitPos(pps.rbsp)
	if err != nil {
		return false
	}
	ops, err := rbspStopBitPos(o.rbsp)
	if err != nil {
		return false
	}
	return bitsEqual(pps.rbsp, pps.tailPos, ps, o.rbsp, o.tailPos, ops)
}

// SetTiles 设置tile划分
//
// @param columnWidths: 为nil时使用均匀划分，否则为前cols-1列的宽度（单位CTU），最后一列由解码器推导
// @param rowHeights:   同上
func (pps *Pps) SetTiles(cols, rows uint32, columnWidths, rowHeights []uint32) {
	pps.TilesEnabledFlag = cols*rows > 1
	pps.ColumnWidthMinus1 = nil
	pps.RowHeightMinus1 = nil
	if !pps.TilesEnabledFlag {
		pps.NumTileColumnsMinus1 = 0
		pps.NumTileRowsMinus1 = 0
		pps.UniformSpacingFlag = true
		return
	}
	pps.NumTileColumnsMinus1 = cols - 1
	pps.NumTileRowsMinus1 = rows - 1
	pps.UniformSpacingFlag = columnWidths == nil && rowHeights == nil
	if !pps.UniformSpacingFlag {
		for i := uint32(0); i < cols-1; i++ {
			pps.ColumnWidthMinus1 = append(pps.ColumnWidthMinus1, columnWidths[i]-1)
		}
		for i := uint32(0); i < rows-1; i++ {
			pps.RowHeightMinus1 = append(pps.RowHeightMinus1, rowHeights[i]-1)
		}
	}
}

// EncodePps 重新生成rbsp，tile相关字段以及pps_loop_filter_across_slices_enabled_flag按字段值写入，其余部分按bit拷贝
func EncodePps(pps *Pps) ([]byte, error) {
	if pps.rbsp == nil {
		return nil, base.NewErrCorruptBitstream("pps not decoded", nil)
	}
	stop, err := rbspStopBitPos(pps.rbsp)
	if err != nil {
		return nil, err
	}

	w := NewBitWriter(len(pps.rbsp) + 16 + 8*len(pps.ColumnWidthMinus1) + 8*len(pps.RowHeightMinus1))
	w.CopyBits(pps.rbsp, 0, pps.tilesPos)
	w.WriteFlag(pps.TilesEnabledFlag)
	w.WriteFlag(pps.EntropyCodingSyncEnabledFlag)
	if pps.TilesEnabledFlag {
		w.WriteUe(pps.NumTileColumnsMinus1)
		w.WriteUe(pps.NumTileRowsMinus1)
		w.WriteFlag(pps.UniformSpacingFlag)
		if !pps.UniformSpacingFlag {
			for _, v := range pps.ColumnWidthMinus1 {
				w.WriteUe(v)
			}
			for _, v := range pps.RowHeightMinus1 {
				w.WriteUe(v)
			}
		}
		w.WriteFlag(pps.LoopFilterAcrossTilesEnabledFlag)
	}
	w.WriteFlag(pps.LoopFilterAcrossSlicesEnabledFlag)
	w.CopyBits(pps.rbsp, pps.tailPos, stop)
	w.WriteTrailingBits()
	return w.Bytes(), nil
}
