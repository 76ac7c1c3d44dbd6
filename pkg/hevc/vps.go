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

// Vps 只解析到profile_tier_level，其余部分合并时保持不变
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.2.1>
//
//	vps_video_parameter_set_id        [4b]
//	vps_base_layer_internal_flag      [1b]
//	vps_base_layer_available_flag     [1b]
//	vps_max_layers_minus1             [6b]
//	vps_max_sub_layers_minus1         [3b]
//	vps_temporal_id_nesting_flag      [1b]
//	vps_reserved_0xffff_16bits        [16b]
//	profile_tier_level(1, vps_max_sub_layers_minus1)
type Vps struct {
	Id                 uint32
	MaxLayersMinus1    uint8
	MaxSubLayersMinus1 uint8
	Ptl                ProfileTierLevel

	rbsp []byte
}

func DecodeVps(rbsp []byte) (*Vps, error) {
	vps, err := decodeVps(rbsp)
	if err != nil {
		return nil, base.NewErrCorruptBitstream("vps", err)
	}
	return vps, nil
}

func decodeVps(rbsp []byte) (*Vps, error) {
	var (
		vps Vps
		v   uint32
		err error
	)
	r := NewBitReader(rbsp)
	if vps.Id, err = r.ReadBits(4); err != nil {
		return nil, err
	}
	if err = r.Skip(2); err != nil {
		return nil, err
	}
	if v, err = r.ReadBits(6); err != nil {
		return nil, err
	}
	vps.MaxLayersMinus1 = uint8(v)
	if v, err = r.ReadBits(3); err != nil {
		return nil, err
	}
	vps.MaxSubLayersMinus1 = uint8(v)
	if err = r.Skip(1 + 16); err != nil {
		return nil, err
	}
	if vps.Ptl, err = parseProfileTierLevel(r, vps.MaxSubLayersMinus1); err != nil {
		return nil, err
	}
	vps.rbsp = rbsp
	return &vps, nil
}

// Clone 复制一份，rbsp共享（只读）
func (vps *Vps) Clone() *Vps {
	c := *vps
	return &c
}

func (vps *Vps) Rbsp() []byte {
	return vps.rbsp
}

// EncodeVps 只有general_level_idc可能被修改
func EncodeVps(vps *Vps) ([]byte, error) {
	if vps.rbsp == nil {
		return nil, base.NewErrCorruptBitstream("vps not decoded", nil)
	}
	return spliceBits(vps.rbsp, vps.Ptl.levelPos, 8, uint32(vps.Ptl.GeneralLevelIdc)), nil
}
