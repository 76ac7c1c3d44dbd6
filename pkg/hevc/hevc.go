// Copyright 2020, Chef.  All rights reserved.
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
	"github.com/q191201771/tilemerge/pkg/h2645"
)

// Category nalu的语义分类，所有coded slice子类型归为一类，子类型保留在Nalu.Type中
type Category uint8

const (
	CategoryOther Category = iota
	CategoryVps
	CategorySps
	CategoryPps
	CategorySei
	CategorySeiSuffix
	CategoryCodedSlice
)

var categoryMapping = map[Category]string{
	CategoryOther:      "OTHER",
	CategoryVps:        "VPS",
	CategorySps:        "SPS",
	CategoryPps:        "PPS",
	CategorySei:        "SEI",
	CategorySeiSuffix:  "SEI_SUFFIX",
	CategoryCodedSlice: "SLICE",
}

func (c Category) String() string {
	if s, ok := categoryMapping[c]; ok {
		return s
	}
	return "unknown"
}

func CategoryOf(typ uint8) Category {
	switch {
	case typ <= h2645.H265NaluTypeSliceRaslR:
		return CategoryCodedSlice
	case typ >= h2645.H265NaluTypeSliceBlaWlp && typ <= h2645.H265NaluTypeSliceCranut:
		return CategoryCodedSlice
	case typ == h2645.H265NaluTypeVps:
		return CategoryVps
	case typ == h2645.H265NaluTypeSps:
		return CategorySps
	case typ == h2645.H265NaluTypePps:
		return CategoryPps
	case typ == h2645.H265NaluTypeSei:
		return CategorySei
	case typ == h2645.H265NaluTypeSeiSuffix:
		return CategorySeiSuffix
	}
	return CategoryOther
}

// Nalu 一个hevc nal unit
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.1.2> nal_unit_header
//
//	forbidden_zero_bit    [1b]
//	nal_unit_type         [6b]
//	nuh_layer_id          [6b]
//	nuh_temporal_id_plus1 [3b]
type Nalu struct {
	Type       uint8
	LayerId    uint8
	TemporalId uint8
	Category   Category

	Header [2]byte

	// nalu header之后的数据，已去除防竞争字节
	Rbsp []byte

	// 被去除的0x03在转义后payload（不包含nalu header）中的位置
	EpPositions []int
}

// NewNalu 解析Scanner返回的数据
func NewNalu(u h2645.Unit) (*Nalu, error) {
	if len(u.Payload) < 2 {
		return nil, base.NewErrCorruptBitstream(fmt.Sprintf("nalu header too short. len=%d", len(u.Payload)), nil)
	}
	b0, b1 := u.Payload[0], u.Payload[1]
	if b0&0x80 != 0 {
		return nil, base.NewErrCorruptBitstream("forbidden_zero_bit set", nil)
	}
	if b1&0x07 == 0 {
		return nil, base.NewErrCorruptBitstream("nuh_temporal_id_plus1 is zero", nil)
	}

	n := &Nalu{
		Type:       h2645.H265ParseNaluType(b0),
		LayerId:    (b0&0x01)<<5 | b1>>3,
		TemporalId: b1&0x07 - 1,
		Header:     [2]byte{b0, b1},
		Rbsp:       u.Payload[2:],
	}
	n.Category = CategoryOf(n.Type)
	if len(u.EpPositions) > 0 {
		n.EpPositions = make([]int, len(u.EpPositions))
		for i, p := range u.EpPositions {
			n.EpPositions[i] = p - 2
		}
	}
	return n, nil
}

func (n *Nalu) IsIrap() bool {
	return h2645.H265IsIrapNalu(n.Type)
}

func (n *Nalu) IsIdr() bool {
	return n.Type == h2645.H265NaluTypeSliceIdr || n.Type == h2645.H265NaluTypeSliceIdrNlp
}

// IsSubLayerNonReference TRAIL_N, TSA_N, STSA_N, RADL_N, RASL_N以及保留的RSV_VCL_N10/12/14
func (n *Nalu) IsSubLayerNonReference() bool {
	return n.Type <= 14 && n.Type%2 == 0
}

// EscapedPayload 按照读取时记录的位置重新插入防竞争字节，得到与输入完全一致的payload
func (n *Nalu) EscapedPayload() []byte {
	out := make([]byte, 0, len(n.Rbsp)+len(n.EpPositions))
	j := 0
	for i := 0; i <= len(n.Rbsp); i++ {
		for j < len(n.EpPositions) && n.EpPositions[j] == len(out) {
			out = append(out, 0x03)
			j++
		}
		if i < len(n.Rbsp) {
			out = append(out, n.Rbsp[i])
		}
	}
	return out
}

// Marshal nalu header + 转义后的payload，不包含start code
func (n *Nalu) Marshal() []byte {
	payload := n.EscapedPayload()
	out := make([]byte, 0, 2+len(payload))
	out = append(out, n.Header[:]...)
	return append(out, payload...)
}

func (n *Nalu) String() string {
	return fmt.Sprintf("type=%d(%s), layer=%d, tid=%d, size=%d", n.Type, n.Category, n.LayerId, n.TemporalId, len(n.Rbsp))
}
