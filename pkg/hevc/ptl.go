// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

const (
	ProfileIdcMain             uint8 = 1
	ProfileIdcMain10           uint8 = 2
	ProfileIdcMainStillPicture uint8 = 3
	ProfileIdcRext             uint8 = 4
)

// ProfileTierLevel
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.3> profile_tier_level
//
//	general_profile_space               [2b]
//	general_tier_flag                   [1b]
//	general_profile_idc                 [5b]
//	general_profile_compatibility_flag  [32b]
//	general_progressive_source_flag     [1b]
//	general_interlaced_source_flag      [1b]
//	general_non_packed_constraint_flag  [1b]
//	general_frame_only_constraint_flag  [1b]
//	general_reserved_zero_43bits        [43b]
//	general_reserved_zero_bit           [1b]
//	general_level_idc                   [8b]
//	...sub layers
type ProfileTierLevel struct {
	GeneralProfileSpace              uint8
	GeneralTierFlag                  bool
	GeneralProfileIdc                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralLevelIdc                  uint8

	levelPos uint // general_level_idc在rbsp中的bit位置
}

func parseProfileTierLevel(r *BitReader, maxSubLayersMinus1 uint8) (ptl ProfileTierLevel, err error) {
	var v uint32
	if v, err = r.ReadBits(2); err != nil {
		return
	}
	ptl.GeneralProfileSpace = uint8(v)
	if ptl.GeneralTierFlag, err = r.ReadFlag(); err != nil {
		return
	}
	if v, err = r.ReadBits(5); err != nil {
		return
	}
	ptl.GeneralProfileIdc = uint8(v)
	if ptl.GeneralProfileCompatibilityFlags, err = r.ReadBits(32); err != nil {
		return
	}
	if err = r.Skip(4 + 43 + 1); err != nil {
		return
	}
	ptl.levelPos = r.Pos()
	if v, err = r.ReadBits(8); err != nil {
		return
	}
	ptl.GeneralLevelIdc = uint8(v)

	profilePresent := make([]bool, maxSubLayersMinus1)
	levelPresent := make([]bool, maxSubLayersMinus1)
	for i := uint8(0); i < maxSubLayersMinus1; i++ {
		if profilePresent[i], err = r.ReadFlag(); err != nil {
			return
		}
		if levelPresent[i], err = r.ReadFlag(); err != nil {
			return
		}
	}
	if maxSubLayersMinus1 > 0 {
		// reserved_zero_2bits
		if err = r.Skip(uint(8-maxSubLayersMinus1) * 2); err != nil {
			return
		}
	}
	for i := uint8(0); i < maxSubLayersMinus1; i++ {
		if profilePresent[i] {
			if err = r.Skip(88); err != nil {
				return
			}
		}
		if levelPresent[i] {
			if err = r.Skip(8); err != nil {
				return
			}
		}
	}
	return
}

// IsMainFamily Main, Main10, MainStillPicture，这几个profile对开启tiles时的tile大小有最小值要求
func (ptl *ProfileTierLevel) IsMainFamily() bool {
	switch ptl.GeneralProfileIdc {
	case ProfileIdcMain, ProfileIdcMain10, ProfileIdcMainStillPicture:
		return true
	}
	// profile_idc为0时通过兼容标志判断
	for _, idc := range []uint8{ProfileIdcMain, ProfileIdcMain10, ProfileIdcMainStillPicture} {
		if ptl.GeneralProfileCompatibilityFlags&(1<<(31-idc)) != 0 {
			return true
		}
	}
	return false
}

// <ISO_IEC_23008-2_2013.pdf> <Table A.6> General tier and level limits
var levelLimits = []struct {
	levelIdc    uint8
	maxLumaPs   uint32
	maxTileRows uint32
	maxTileCols uint32
}{
	{30, 36864, 1, 1},
	{60, 122880, 1, 1},
	{63, 245760, 1, 1},
	{90, 552960, 2, 2},
	{93, 983040, 3, 3},
	{120, 2228224, 5, 5},
	{123, 2228224, 5, 5},
	{150, 8912896, 11, 10},
	{153, 8912896, 11, 10},
	{156, 8912896, 11, 10},
	{180, 35651584, 22, 20},
	{183, 35651584, 22, 20},
	{186, 35651584, 22, 20},
}

const maxLevelIdc = 186

// MinLevelForLumaPs 能容纳lumaPs个亮度采样点的最小level，并且不低于atLeast
func MinLevelForLumaPs(lumaPs uint32, atLeast uint8) uint8 {
	for _, l := range levelLimits {
		if l.levelIdc >= atLeast && l.maxLumaPs >= lumaPs {
			return l.levelIdc
		}
	}
	return fallbackLevel(atLeast)
}

// MinLevel 满足图像宽高以及tile行列数限制的最小level，并且不低于atLeast
//
// <A.4.1> pic_width_in_luma_samples和pic_height_in_luma_samples都不能超过Sqrt(MaxLumaPs*8)，
// 乘积不能超过MaxLumaPs，num_tile_columns_minus1和num_tile_rows_minus1分别小于MaxTileCols和MaxTileRows
func MinLevel(width, height, tileCols, tileRows uint32, atLeast uint8) uint8 {
	lumaPs := uint64(width) * uint64(height)
	for _, l := range levelLimits {
		if l.levelIdc < atLeast {
			continue
		}
		maxDim2 := uint64(l.maxLumaPs) * 8
		if lumaPs <= uint64(l.maxLumaPs) &&
			uint64(width)*uint64(width) <= maxDim2 &&
			uint64(height)*uint64(height) <= maxDim2 &&
			tileCols <= l.maxTileCols &&
			tileRows <= l.maxTileRows {
			return l.levelIdc
		}
	}
	return fallbackLevel(atLeast)
}

func fallbackLevel(atLeast uint8) uint8 {
	if atLeast > maxLevelIdc {
		return atLeast
	}
	return maxLevelIdc
}
