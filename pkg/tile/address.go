// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tile

import (
	"github.com/q191201771/tilemerge/pkg/base"
)

// AddressMaps CTU光栅地址与tile扫描地址的互相转换
//
// 两个数组的长度都是NumCtus+1，下标NumCtus映射到自身，表示一帧结束。
//
// <ISO_IEC_23008-2_2013.pdf> <6.5.1> (6-5) (6-6)
type AddressMaps struct {
	NumCtus uint32
	TsToRs  []uint32
	RsToTs  []uint32

	grid        *Grid
	tileTsStart []uint32
}

// Build 从第0个CTU开始，按tile扫描顺序遍历一遍，同时填充两个数组
func Build(g *Grid) *AddressMaps {
	n := g.NumCtus()
	m := &AddressMaps{
		NumCtus:     n,
		TsToRs:      make([]uint32, n+1),
		RsToTs:      make([]uint32, n+1),
		grid:        g,
		tileTsStart: make([]uint32, len(g.Tiles)),
	}

	fw := g.FrameWidthCtus
	tileIdx := 0
	rs := uint32(0)
	for ts := uint32(0); ts < n; ts++ {
		m.TsToRs[ts] = rs
		m.RsToTs[rs] = ts

		d := &g.Tiles[tileIdx]
		x, y := rs%fw, rs/fw
		switch {
		case x == d.RightEdgeCtus && y == d.BottomEdgeCtus:
			// tile的最后一个CTU，跳到下一个tile的第一个CTU
			tileIdx++
			if tileIdx == len(g.Tiles) {
				rs = n
			} else {
				rs = g.Tiles[tileIdx].FirstCtuRsAddr
				m.tileTsStart[tileIdx] = ts + 1
			}
		case x == d.RightEdgeCtus:
			rs += fw - d.WidthCtus + 1
		default:
			rs++
		}
	}
	m.TsToRs[n] = n
	m.RsToTs[n] = n
	return m
}

// TileTsStart 第tileIdx个tile的第一个CTU的tile扫描地址
func (m *AddressMaps) TileTsStart(tileIdx int) uint32 {
	return m.tileTsStart[tileIdx]
}

// TranslateLocal 将tile内部的光栅地址转换为整帧的光栅地址
func (m *AddressMaps) TranslateLocal(tileIdx int, localAddr uint32) (uint32, error) {
	if tileIdx < 0 || tileIdx >= len(m.grid.Tiles) {
		return 0, base.NewErrInvalidGeometry("tile index out of range. idx=%d", tileIdx)
	}
	d := &m.grid.Tiles[tileIdx]
	if localAddr >= d.NumCtus() {
		return 0, base.NewErrCorruptBitstream("slice_segment_address beyond tile", nil)
	}
	return d.FirstCtuRsAddr + (localAddr/d.WidthCtus)*m.grid.FrameWidthCtus + localAddr%d.WidthCtus, nil
}

// TranslateLocalByScan 与TranslateLocal结果一致，通过tile扫描地址查表得到
func (m *AddressMaps) TranslateLocalByScan(tileIdx int, localAddr uint32) (uint32, error) {
	if tileIdx < 0 || tileIdx >= len(m.grid.Tiles) {
		return 0, base.NewErrInvalidGeometry("tile index out of range. idx=%d", tileIdx)
	}
	if localAddr >= m.grid.Tiles[tileIdx].NumCtus() {
		return 0, base.NewErrCorruptBitstream("slice_segment_address beyond tile", nil)
	}
	return m.TsToRs[m.tileTsStart[tileIdx]+localAddr], nil
}
