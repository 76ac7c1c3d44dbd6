// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// CRC_32 of PSI sections
//
// 多项式0x04C11DB7，不做bit翻转，结果不取反。
// hash/crc32只支持bit翻转的形式，所以这里单独实现。
//
// <ISO_IEC_13818-1.pdf> <Annex A>
var crc32Table = makeCrc32Table()

func makeCrc32Table() [256]uint32 {
	var t [256]uint32
	for i := range t {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

// CalcCrc32 首次调用时crc传入0xFFFFFFFF
func CalcCrc32(crc uint32, buffer []byte) uint32 {
	for _, b := range buffer {
		crc = crc<<8 ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}
