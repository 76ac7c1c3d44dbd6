// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package h2645

// <ISO_IEC_23008-2_2013.pdf> <7.4.2> <page 65>
//
// emulation_prevention_three_byte:
//   rbsp中出现 00 00 00, 00 00 01, 00 00 02, 00 00 03 时，在两个0x00后插入0x03
//   rbsp以0x00结尾时，尾部追加一个0x03

// InsertEmulationPrevention rbsp -> 用于封装的nalu payload
//
// @return: 内存块为独立申请
func InsertEmulationPrevention(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/64+2)
	zeroCount := 0
	for _, v := range rbsp {
		if zeroCount == 2 && v <= 3 {
			out = append(out, 0x03)
			zeroCount = 0
		}
		out = append(out, v)
		if v == 0x00 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}
	if zeroCount > 0 {
		out = append(out, 0x03)
	}
	return out
}

// RemoveEmulationPrevention nalu payload -> rbsp
//
// 两个0x00之后的0x03，如果是最后一个字节，或者下一个字节不大于3，则被去除
//
// @return epPositions: 被去除的0x03在输入中的位置，升序
func RemoveEmulationPrevention(b []byte) (rbsp []byte, epPositions []int) {
	rbsp = make([]byte, 0, len(b))
	zeroCount := 0
	for i, v := range b {
		if zeroCount >= 2 && v == 0x03 && (i == len(b)-1 || b[i+1] <= 3) {
			epPositions = append(epPositions, i)
			zeroCount = 0
			continue
		}
		rbsp = append(rbsp, v)
		if v == 0x00 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}
	return
}

// EscapedToRbspPos 将转义后数据中的位置换算成rbsp中的位置
//
// pos处如果正好是一个被去除的0x03，返回其后一个字节在rbsp中的位置
func EscapedToRbspPos(pos int, epPositions []int) int {
	n := 0
	for _, p := range epPositions {
		if p >= pos {
			break
		}
		n++
	}
	return pos - n
}

// RbspToEscapedPos 将rbsp中的位置换算成转义后数据中的位置
func RbspToEscapedPos(pos int, epPositions []int) int {
	for _, p := range epPositions {
		if p > pos {
			break
		}
		pos++
	}
	return pos
}
