// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tile

import (
	"fmt"

	"github.com/q191201771/tilemerge/pkg/base"
)

// Params 计算tile划分的输入
type Params struct {
	EntireWidth  uint32 // 合并后图像的亮度采样点
	EntireHeight uint32
	CtuWidth     uint32
	CtuHeight    uint32
	Rows         uint32
	Cols         uint32

	// Uniform 为false时，使用ColumnWidths的前Cols-1个以及RowHeights的前Rows-1个（单位CTU），
	// 最后一列（行）为剩余部分
	Uniform      bool
	ColumnWidths []uint32
	RowHeights   []uint32

	// MinWidthCtus 每个tile的最小宽度，0表示1。只在tile个数大于1时检查
	MinWidthCtus  uint32
	MinHeightCtus uint32
}

// Descriptor 单个tile的位置，单位CTU，边界为闭区间
type Descriptor struct {
	Idx int
	Row uint32
	Col uint32

	WidthCtus      uint32
	HeightCtus     uint32
	RightEdgeCtus  uint32
	BottomEdgeCtus uint32
	FirstCtuRsAddr uint32
}

func (d *Descriptor) LeftEdgeCtus() uint32 {
	return d.RightEdgeCtus + 1 - d.WidthCtus
}

func (d *Descriptor) TopEdgeCtus() uint32 {
	return d.BottomEdgeCtus + 1 - d.HeightCtus
}

func (d *Descriptor) NumCtus() uint32 {
	return d.WidthCtus * d.HeightCtus
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("tile(%d) row=%d col=%d size=%dx%d right=%d bottom=%d first=%d",
		d.Idx, d.Row, d.Col, d.WidthCtus, d.HeightCtus, d.RightEdgeCtus, d.BottomEdgeCtus, d.FirstCtuRsAddr)
}

// Grid 按tile光栅顺序（先行后列）排列的tile
type Grid struct {
	FrameWidthCtus  uint32
	FrameHeightCtus uint32
	Rows            uint32
	Cols            uint32
	Uniform         bool
	ColumnWidths    []uint32 // 所有列的宽度
	RowHeights      []uint32 // 所有行的高度

	Tiles []Descriptor

	// TileIdxMap CTU光栅地址 -> tile序号
	TileIdxMap []int
}

func (g *Grid) NumCtus() uint32 {
	return g.FrameWidthCtus * g.FrameHeightCtus
}

func (g *Grid) NumTiles() int {
	return len(g.Tiles)
}

// TileAt 光栅地址为rsAddr的CTU所属的tile
func (g *Grid) TileAt(rsAddr uint32) int {
	return g.TileIdxMap[rsAddr]
}

// Compute 计算tile划分
//
// <ISO_IEC_23008-2_2013.pdf> <6.5.1> (6-3) (6-4)
func Compute(p Params) (*Grid, error) {
	if p.EntireWidth == 0 || p.EntireHeight == 0 || p.CtuWidth == 0 || p.CtuHeight == 0 || p.Rows == 0 || p.Cols == 0 {
		return nil, base.NewErrInvalidGeometry("zero parameter. entire=%dx%d, ctu=%dx%d, rows=%d, cols=%d",
			p.EntireWidth, p.EntireHeight, p.CtuWidth, p.CtuHeight, p.Rows, p.Cols)
	}

	g := &Grid{
		FrameWidthCtus:  ceilDiv(p.EntireWidth, p.CtuWidth),
		FrameHeightCtus: ceilDiv(p.EntireHeight, p.CtuHeight),
		Rows:            p.Rows,
		Cols:            p.Cols,
		Uniform:         p.Uniform,
	}

	var err error
	if g.ColumnWidths, err = spacing(g.FrameWidthCtus, p.Cols, p.Uniform, p.ColumnWidths, "column"); err != nil {
		return nil, err
	}
	if g.RowHeights, err = spacing(g.FrameHeightCtus, p.Rows, p.Uniform, p.RowHeights, "row"); err != nil {
		return nil, err
	}

	if p.Rows*p.Cols > 1 {
		minW, minH := atLeastOne(p.MinWidthCtus), atLeastOne(p.MinHeightCtus)
		for i, w := range g.ColumnWidths {
			if w < minW {
				return nil, base.NewErrInvalidGeometry("column %d too narrow. width=%d, min=%d", i, w, minW)
			}
		}
		for i, h := range g.RowHeights {
			if h < minH {
				return nil, base.NewErrInvalidGeometry("row %d too short. height=%d, min=%d", i, h, minH)
			}
		}
	}

	var bottom uint32
	for r := uint32(0); r < p.Rows; r++ {
		bottom += g.RowHeights[r]
		var right uint32
		for c := uint32(0); c < p.Cols; c++ {
			right += g.ColumnWidths[c]
			d := Descriptor{
				Idx:            len(g.Tiles),
				Row:            r,
				Col:            c,
				WidthCtus:      g.ColumnWidths[c],
				HeightCtus:     g.RowHeights[r],
				RightEdgeCtus:  right - 1,
				BottomEdgeCtus: bottom - 1,
			}
			d.FirstCtuRsAddr = d.TopEdgeCtus()*g.FrameWidthCtus + d.LeftEdgeCtus()
			g.Tiles = append(g.Tiles, d)
		}
	}

	if err = g.buildTileIdxMap(); err != nil {
		return nil, err
	}
	Log.Debugf("tile grid. frame=%dx%d ctus, tiles=%dx%d, uniform=%t, widths=%v, heights=%v",
		g.FrameWidthCtus, g.FrameHeightCtus, p.Cols, p.Rows, p.Uniform, g.ColumnWidths, g.RowHeights)
	return g, nil
}

// buildTileIdxMap 每个CTU找到边界包含它的唯一一个tile
func (g *Grid) buildTileIdxMap() error {
	g.TileIdxMap = make([]int, g.NumCtus())
	for i := range g.TileIdxMap {
		x := uint32(i) % g.FrameWidthCtus
		y := uint32(i) / g.FrameWidthCtus
		idx := -1
		for j := range g.Tiles {
			d := &g.Tiles[j]
			if x >= d.LeftEdgeCtus() && x <= d.RightEdgeCtus && y >= d.TopEdgeCtus() && y <= d.BottomEdgeCtus {
				if idx != -1 {
					return base.NewErrInvalidGeometry("ctu %d covered by tile %d and %d", i, idx, j)
				}
				idx = j
			}
		}
		if idx == -1 {
			return base.NewErrInvalidGeometry("ctu %d not covered", i)
		}
		g.TileIdxMap[i] = idx
	}
	return nil
}

// spacing 计算每一列的宽度（或每一行的高度）
func spacing(total uint32, n uint32, uniform bool, explicit []uint32, what string) ([]uint32, error) {
	if n > total {
		return nil, base.NewErrInvalidGeometry("too many %ss. num=%d, ctus=%d", what, n, total)
	}
	out := make([]uint32, n)
	if uniform {
		// 用差值而不是直接相除，保证总和等于total
		for i := uint32(0); i < n; i++ {
			out[i] = ((i+1)*total)/n - (i*total)/n
		}
		return out, nil
	}

	if uint32(len(explicit)) < n-1 {
		return nil, base.NewErrInvalidGeometry("not enough explicit %s sizes. need=%d, got=%d", what, n-1, len(explicit))
	}
	var sum uint32
	for i := uint32(0); i < n-1; i++ {
		if explicit[i] == 0 {
			return nil, base.NewErrInvalidGeometry("zero %s size. idx=%d", what, i)
		}
		out[i] = explicit[i]
		sum += explicit[i]
	}
	if sum >= total {
		return nil, base.NewErrInvalidGeometry("explicit %s sizes exceed frame. sum=%d, ctus=%d", what, sum, total)
	}
	out[n-1] = total - sum
	return out, nil
}

// MinSizeForProfile 开启tiles时每个tile的最小尺寸，单位CTU。
// Main、Main10、MainStillPicture要求tile宽度不小于256个亮度采样点，高度不小于64个亮度采样点。
//
// <ISO_IEC_23008-2_2013.pdf> <A.3.2> <A.3.3> <A.3.4>
func MinSizeForProfile(profileIdc uint8, ctuWidth, ctuHeight uint32) (uint32, uint32) {
	switch profileIdc {
	case 1, 2, 3:
		return atLeastOne(ceilDiv(256, ctuWidth)), atLeastOne(ceilDiv(64, ctuHeight))
	}
	return 1, 1
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func atLeastOne(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}
