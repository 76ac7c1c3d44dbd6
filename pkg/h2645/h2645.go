// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package h2645

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// 本package只处理字节流层面的内容（start code分割，防竞争字节），不关心具体语法元素

var (
	NaluStartCode3 = []byte{0x0, 0x0, 0x1}
	NaluStartCode4 = []byte{0x0, 0x0, 0x0, 0x1}
)

// ISO_IEC_23008-2_2013.pdf
// Table 7-1 – NAL unit type codes and NAL unit type classes
const (
	H265NaluTypeSliceTrailN uint8 = 0 // 0x0
	H265NaluTypeSliceTrailR uint8 = 1 // 0x01
	H265NaluTypeSliceTsaN   uint8 = 2 // 0x02
	H265NaluTypeSliceTsaR   uint8 = 3 // 0x03
	H265NaluTypeSliceStsaN  uint8 = 4 // 0x04
	H265NaluTypeSliceStsaR  uint8 = 5 // 0x05
	H265NaluTypeSliceRadlN  uint8 = 6 // 0x06
	H265NaluTypeSliceRadlR  uint8 = 7 // 0x07
	H265NaluTypeSliceRaslN  uint8 = 8 // 0x08
	H265NaluTypeSliceRaslR  uint8 = 9 // 0x09

	H265NaluTypeSliceBlaWlp       uint8 = 16 // 0x10
	H265NaluTypeSliceBlaWradl     uint8 = 17 // 0x11
	H265NaluTypeSliceBlaNlp       uint8 = 18 // 0x12
	H265NaluTypeSliceIdr          uint8 = 19 // 0x13
	H265NaluTypeSliceIdrNlp       uint8 = 20 // 0x14
	H265NaluTypeSliceCranut       uint8 = 21 // 0x15
	H265NaluTypeSliceRsvIrapVcl22 uint8 = 22 // 0x16
	H265NaluTypeSliceRsvIrapVcl23 uint8 = 23 // 0x17

	H265NaluTypeVps       uint8 = 32 // 0x20
	H265NaluTypeSps       uint8 = 33 // 0x21
	H265NaluTypePps       uint8 = 34 // 0x22
	H265NaluTypeAud       uint8 = 35 // 0x23
	H265NaluTypeEos       uint8 = 36 // 0x24
	H265NaluTypeEob       uint8 = 37 // 0x25
	H265NaluTypeFd        uint8 = 38 // 0x26
	H265NaluTypeSei       uint8 = 39 // 0x27
	H265NaluTypeSeiSuffix uint8 = 40 // 0x28
)

// H265ParseNaluType 从nalu header的第一个字节中解析出nal_unit_type
func H265ParseNaluType(v uint8) uint8 {
	// 6 bit in middle
	// 0*** ***0
	return (v & 0x7E) >> 1
}

func H265IsIrapNalu(typ uint8) bool {
	return typ >= H265NaluTypeSliceBlaWlp && typ <= H265NaluTypeSliceRsvIrapVcl23
}

// AppendAnnexb 在out尾部追加start code以及nalu，nalu需要是已经添加过防竞争字节的数据
//
// @param long: true使用4字节start code，false使用3字节
func AppendAnnexb(out []byte, nalu []byte, long bool) []byte {
	if long {
		out = append(out, NaluStartCode4...)
	} else {
		out = append(out, NaluStartCode3...)
	}
	return append(out, nalu...)
}
