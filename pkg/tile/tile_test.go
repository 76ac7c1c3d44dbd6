// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tile_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/tile"
)

func TestScenarioA(t *testing.T) {
	minW, minH := tile.MinSizeForProfile(1, 64, 64)
	assert.Equal(t, uint32(4), minW)
	assert.Equal(t, uint32(1), minH)

	g, err := tile.Compute(tile.Params{
		EntireWidth:   512,
		EntireHeight:  128,
		CtuWidth:      64,
		CtuHeight:     64,
		Rows:          1,
		Cols:          2,
		Uniform:       true,
		MinWidthCtus:  minW,
		MinHeightCtus: minH,
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(8), g.FrameWidthCtus)
	assert.Equal(t, uint32(2), g.FrameHeightCtus)
	assert.Equal(t, 2, g.NumTiles())
	assert.Equal(t, uint32(0), g.Tiles[0].FirstCtuRsAddr)
	assert.Equal(t, uint32(4), g.Tiles[1].FirstCtuRsAddr)
	assert.Equal(t, uint32(4), g.Tiles[1].WidthCtus)
	assert.Equal(t, uint32(3), g.Tiles[0].RightEdgeCtus)
	assert.Equal(t, uint32(7), g.Tiles[1].RightEdgeCtus)
	assert.Equal(t, uint32(1), g.Tiles[1].BottomEdgeCtus)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1}, g.TileIdxMap)

	m := tile.Build(g)
	assert.Equal(t, []uint32{0, 1, 2, 3, 8, 9, 10, 11, 4, 5, 6, 7, 12, 13, 14, 15, 16}, m.TsToRs)
	assert.Equal(t, uint32(0), m.TileTsStart(0))
	assert.Equal(t, uint32(8), m.TileTsStart(1))
	assert.Equal(t, uint32(4), m.TsToRs[m.TileTsStart(1)])

	addr, err := m.TranslateLocal(1, 5)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(13), addr)
	_, err = m.TranslateLocal(1, 8)
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	_, err = m.TranslateLocal(2, 0)
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidGeometry))
}

func TestScenarioB(t *testing.T) {
	g, err := tile.Compute(tile.Params{
		EntireWidth:  512,
		EntireHeight: 128,
		CtuWidth:     64,
		CtuHeight:    64,
		Rows:         1,
		Cols:         2,
		Uniform:      false,
		ColumnWidths: []uint32{2, 2},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, []uint32{2, 6}, g.ColumnWidths)
	assert.Equal(t, uint32(6), g.Tiles[1].WidthCtus)
	assert.Equal(t, uint32(2), g.Tiles[1].FirstCtuRsAddr)
	assert.Equal(t, []uint32{2}, g.RowHeights)
}

func TestUniformRemainder(t *testing.T) {
	// 1000/64向上取整为16，16列分3份
	g, err := tile.Compute(tile.Params{
		EntireWidth:  1000,
		EntireHeight: 300,
		CtuWidth:     64,
		CtuHeight:    64,
		Rows:         2,
		Cols:         3,
		Uniform:      true,
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(16), g.FrameWidthCtus)
	assert.Equal(t, uint32(5), g.FrameHeightCtus)
	assert.Equal(t, []uint32{5, 5, 6}, g.ColumnWidths)
	assert.Equal(t, []uint32{2, 3}, g.RowHeights)
	assert.Equal(t, uint32(2*16+10), g.Tiles[5].FirstCtuRsAddr)
}

func TestInvalidGeometry(t *testing.T) {
	def := tile.Params{EntireWidth: 512, EntireHeight: 128, CtuWidth: 64, CtuHeight: 64, Rows: 1, Cols: 2, Uniform: true}

	cases := []func(p *tile.Params){
		func(p *tile.Params) { p.EntireWidth = 0 },
		func(p *tile.Params) { p.CtuHeight = 0 },
		func(p *tile.Params) { p.Cols = 9 },
		func(p *tile.Params) { p.MinWidthCtus = 5 },
		func(p *tile.Params) { p.Rows = 2; p.MinHeightCtus = 2 },
		func(p *tile.Params) { p.Uniform = false },
		func(p *tile.Params) { p.Uniform = false; p.ColumnWidths = []uint32{8} },
		func(p *tile.Params) { p.Uniform = false; p.ColumnWidths = []uint32{0} },
	}
	for i, c := range cases {
		p := def
		c(&p)
		_, err := tile.Compute(p)
		assert.Equal(t, true, errors.Is(err, base.ErrInvalidGeometry), fmt.Sprint(i))
	}

	// 只有一个tile时不检查最小尺寸
	p := def
	p.Cols = 1
	p.MinWidthCtus = 100
	_, err := tile.Compute(p)
	assert.Equal(t, nil, err)
}

func TestMinSizeForProfile(t *testing.T) {
	w, h := tile.MinSizeForProfile(2, 16, 16)
	assert.Equal(t, uint32(16), w)
	assert.Equal(t, uint32(4), h)
	w, h = tile.MinSizeForProfile(1, 32, 32)
	assert.Equal(t, uint32(8), w)
	assert.Equal(t, uint32(2), h)
	w, h = tile.MinSizeForProfile(4, 64, 64)
	assert.Equal(t, uint32(1), w)
	assert.Equal(t, uint32(1), h)
}

func checkGrid(t *testing.T, g *tile.Grid) {
	// 每一行tile的宽度之和等于帧宽，每一列tile的高度之和等于帧高
	for r := uint32(0); r < g.Rows; r++ {
		var sum uint32
		for c := uint32(0); c < g.Cols; c++ {
			sum += g.Tiles[r*g.Cols+c].WidthCtus
		}
		assert.Equal(t, g.FrameWidthCtus, sum)
	}
	for c := uint32(0); c < g.Cols; c++ {
		var sum uint32
		for r := uint32(0); r < g.Rows; r++ {
			sum += g.Tiles[r*g.Cols+c].HeightCtus
		}
		assert.Equal(t, g.FrameHeightCtus, sum)
	}

	// 每个CTU只属于一个tile
	count := make([]uint32, g.NumTiles())
	for _, idx := range g.TileIdxMap {
		count[idx]++
	}
	for i := range g.Tiles {
		assert.Equal(t, g.Tiles[i].NumCtus(), count[i])
		assert.Equal(t, i, g.TileAt(g.Tiles[i].FirstCtuRsAddr))
	}

	// 双射，且哨兵映射到自身
	m := tile.Build(g)
	n := g.NumCtus()
	assert.Equal(t, int(n+1), len(m.TsToRs))
	assert.Equal(t, n, m.TsToRs[n])
	assert.Equal(t, n, m.RsToTs[n])
	seen := make([]bool, n+1)
	for ts := uint32(0); ts <= n; ts++ {
		rs := m.TsToRs[ts]
		assert.Equal(t, false, seen[rs])
		seen[rs] = true
		assert.Equal(t, ts, m.RsToTs[rs])
	}

	// tile扫描顺序中同一个tile的CTU连续
	for ts := uint32(1); ts < n; ts++ {
		prev := g.TileAt(m.TsToRs[ts-1])
		cur := g.TileAt(m.TsToRs[ts])
		assert.Equal(t, true, cur == prev || cur == prev+1)
	}

	for i := range g.Tiles {
		d := &g.Tiles[i]
		assert.Equal(t, d.FirstCtuRsAddr, m.TsToRs[m.TileTsStart(i)])
		for local := uint32(0); local < d.NumCtus(); local++ {
			a, err := m.TranslateLocal(i, local)
			assert.Equal(t, nil, err)
			b, err := m.TranslateLocalByScan(i, local)
			assert.Equal(t, nil, err)
			assert.Equal(t, a, b)
			assert.Equal(t, i, g.TileAt(a))
		}
	}
}

func TestCoverageAndBijection(t *testing.T) {
	rnd := rand.New(rand.NewSource(20240607))
	ctus := []uint32{16, 32, 64}
	for i := 0; i < 300; i++ {
		ctu := ctus[rnd.Intn(len(ctus))]
		p := tile.Params{
			EntireWidth:  uint32(1 + rnd.Intn(2000)),
			EntireHeight: uint32(1 + rnd.Intn(1200)),
			CtuWidth:     ctu,
			CtuHeight:    ctu,
			Uniform:      rnd.Intn(2) == 0,
		}
		fw := (p.EntireWidth + ctu - 1) / ctu
		fh := (p.EntireHeight + ctu - 1) / ctu
		p.Cols = uint32(1 + rnd.Intn(int(min32(fw, 8))))
		p.Rows = uint32(1 + rnd.Intn(int(min32(fh, 8))))
		if !p.Uniform {
			p.ColumnWidths = explicitSizes(rnd, fw, p.Cols)
			p.RowHeights = explicitSizes(rnd, fh, p.Rows)
		}
		g, err := tile.Compute(p)
		assert.Equal(t, nil, err)
		checkGrid(t, g)
	}
}

// explicitSizes 随机生成n-1个尺寸，保证总和小于total
func explicitSizes(rnd *rand.Rand, total, n uint32) []uint32 {
	out := make([]uint32, 0, n-1)
	left := total - n // 每个至少为1，剩余的随机分配
	for i := uint32(0); i < n-1; i++ {
		extra := uint32(0)
		if left > 0 {
			extra = uint32(rnd.Intn(int(left) + 1))
		}
		left -= extra
		out = append(out, 1+extra)
	}
	return out
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
