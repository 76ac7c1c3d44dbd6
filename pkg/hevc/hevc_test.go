// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/h2645"
	"github.com/q191201771/tilemerge/pkg/hevc"
	"github.com/q191201771/tilemerge/pkg/innertest"
)

// lookup 测试用的只有一组sps/pps的ParamSetLookup
type lookup struct {
	sps *hevc.Sps
	pps *hevc.Pps
}

func (l *lookup) Sps(id uint32) (*hevc.Sps, error) {
	if l.sps == nil || l.sps.Id != id {
		return nil, base.NewErrNotFound("sps", id)
	}
	return l.sps, nil
}

func (l *lookup) Pps(id uint32) (*hevc.Pps, error) {
	if l.pps == nil || l.pps.Id != id {
		return nil, base.NewErrNotFound("pps", id)
	}
	return l.pps, nil
}

func (l *lookup) FirstPps() (*hevc.Pps, bool) {
	return l.pps, l.pps != nil
}

func scanAll(t *testing.T, data []byte) []*hevc.Nalu {
	var out []*hevc.Nalu
	s := h2645.NewScanner(bytes.NewReader(data))
	for {
		u, err := s.Next()
		if err == io.EOF {
			break
		}
		assert.Equal(t, nil, err)
		n, err := hevc.NewNalu(u)
		assert.Equal(t, nil, err)
		out = append(out, n)
	}
	return out
}

type parsed struct {
	vps    *hevc.Vps
	sps    *hevc.Sps
	pps    *hevc.Pps
	slices []*hevc.Nalu
	nalus  []*hevc.Nalu
}

func parseStream(t *testing.T, s *innertest.Stream) parsed {
	var p parsed
	var err error
	p.nalus = scanAll(t, s.Data)
	for _, n := range p.nalus {
		switch n.Category {
		case hevc.CategoryVps:
			if p.vps == nil {
				p.vps, err = hevc.DecodeVps(n.Rbsp)
				assert.Equal(t, nil, err)
			}
		case hevc.CategorySps:
			if p.sps == nil {
				p.sps, err = hevc.DecodeSps(n.Rbsp)
				assert.Equal(t, nil, err)
			}
		case hevc.CategoryPps:
			if p.pps == nil {
				p.pps, err = hevc.DecodePps(n.Rbsp)
				assert.Equal(t, nil, err)
			}
		case hevc.CategoryCodedSlice:
			p.slices = append(p.slices, n)
		}
	}
	return p
}

func TestNalu(t *testing.T) {
	s := innertest.NewStream(innertest.StreamConfig{
		Width:     256,
		Height:    128,
		NumFrames: 2,
		PrefixSei: true,
		SuffixSei: true,
		Aud:       true,
	})
	nalus := scanAll(t, s.Data)
	var categories []hevc.Category
	for _, n := range nalus {
		categories = append(categories, n.Category)
		assert.Equal(t, uint8(0), n.LayerId)
		assert.Equal(t, uint8(0), n.TemporalId)
	}
	assert.Equal(t, []hevc.Category{
		hevc.CategoryOther, hevc.CategoryVps, hevc.CategorySps, hevc.CategoryPps, hevc.CategorySei, hevc.CategoryCodedSlice, hevc.CategorySeiSuffix,
		hevc.CategoryOther, hevc.CategoryCodedSlice, hevc.CategorySeiSuffix,
	}, categories)

	// 重新转义后与输入完全一致
	assert.Equal(t, s.Pictures[0].Segments[0].Nalu, nalus[5].Marshal())
	assert.Equal(t, s.Pictures[1].Segments[0].Nalu, nalus[8].Marshal())
	assert.Equal(t, true, nalus[5].IsIrap())
	assert.Equal(t, true, nalus[5].IsIdr())
	assert.Equal(t, false, nalus[8].IsIrap())
	assert.Equal(t, false, nalus[8].IsSubLayerNonReference())

	_, err := hevc.NewNalu(h2645.Unit{Payload: []byte{0x80, 0x01}})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	_, err = hevc.NewNalu(h2645.Unit{Payload: []byte{0x02, 0x00}})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	_, err = hevc.NewNalu(h2645.Unit{Payload: []byte{0x02}})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
}

func TestCategoryOf(t *testing.T) {
	for typ := uint8(0); typ <= 9; typ++ {
		assert.Equal(t, hevc.CategoryCodedSlice, hevc.CategoryOf(typ))
	}
	for typ := uint8(16); typ <= 21; typ++ {
		assert.Equal(t, hevc.CategoryCodedSlice, hevc.CategoryOf(typ))
	}
	assert.Equal(t, hevc.CategoryVps, hevc.CategoryOf(32))
	assert.Equal(t, hevc.CategorySps, hevc.CategoryOf(33))
	assert.Equal(t, hevc.CategoryPps, hevc.CategoryOf(34))
	assert.Equal(t, hevc.CategoryOther, hevc.CategoryOf(35))
	assert.Equal(t, hevc.CategorySei, hevc.CategoryOf(39))
	assert.Equal(t, hevc.CategorySeiSuffix, hevc.CategoryOf(40))
	assert.Equal(t, "SLICE", hevc.CategoryCodedSlice.String())
}

func TestBitReaderWriter(t *testing.T) {
	w := hevc.NewBitWriter(1)
	w.WriteFlag(true)
	w.WriteBits(3, 5)
	w.WriteUe(0)
	w.WriteUe(7)
	w.WriteSe(-3)
	w.WriteSe(4)
	w.WriteBits(32, 0xDEADBEEF)
	w.WriteUe(1 << 20)
	w.WriteTrailingBits()
	assert.Equal(t, true, w.IsByteAligned())

	r := hevc.NewBitReader(w.Bytes())
	f, err := r.ReadFlag()
	assert.Equal(t, nil, err)
	assert.Equal(t, true, f)
	v, err := r.ReadBits(3)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(5), v)
	assert.Equal(t, uint(4), r.Pos())
	v, _ = r.ReadUe()
	assert.Equal(t, uint32(0), v)
	assert.Equal(t, uint(5), r.Pos())
	v, _ = r.ReadUe()
	assert.Equal(t, uint32(7), v)
	assert.Equal(t, uint(12), r.Pos())
	s, _ := r.ReadSe()
	assert.Equal(t, int32(-3), s)
	s, _ = r.ReadSe()
	assert.Equal(t, int32(4), s)
	v, _ = r.ReadBits(32)
	assert.Equal(t, uint32(0xDEADBEEF), v)
	v, err = r.ReadUe()
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(1<<20), v)

	// 剩余的是rbsp_stop_one_bit，按ue读出来是0
	v, err = r.ReadUeMax(0, "x")
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(0), v)

	w3 := hevc.NewBitWriter(1)
	w3.WriteUe(5)
	w3.WriteTrailingBits()
	_, err = hevc.NewBitReader(w3.Bytes()).ReadUeMax(4, "x")
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	v, err = hevc.NewBitReader(w3.Bytes()).ReadUeMax(5, "x")
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(5), v)

	// CopyBits非对齐拷贝
	src := []byte{0xA5, 0x3C, 0xF0}
	w2 := hevc.NewBitWriter(4)
	w2.WriteBits(3, 0)
	w2.CopyBits(src, 5, 21)
	assert.Equal(t, uint(19), w2.Pos())
	r2 := hevc.NewBitReader(w2.Bytes())
	_ = r2.Skip(3)
	v, _ = r2.ReadBits(16)
	// 0xA53CF0的第5~20位
	assert.Equal(t, uint32((0xA53CF0>>3)&0xFFFF), v)
}

func TestParamSets(t *testing.T) {
	s := innertest.NewStream(innertest.StreamConfig{
		Width:             300,
		Height:            200,
		ConformanceWindow: true,
		Sao:               true,
		Wpp:               true,
		LevelIdc:          60,
	})
	p := parseStream(t, s)

	assert.Equal(t, uint32(0), p.vps.Id)
	assert.Equal(t, hevc.ProfileIdcMain, p.vps.Ptl.GeneralProfileIdc)
	assert.Equal(t, uint8(60), p.vps.Ptl.GeneralLevelIdc)
	assert.Equal(t, true, p.vps.Ptl.IsMainFamily())

	sps := p.sps
	assert.Equal(t, uint32(0), sps.Id)
	assert.Equal(t, uint32(320), sps.PicWidthInLumaSamples)
	assert.Equal(t, uint32(256), sps.PicHeightInLumaSamples)
	assert.Equal(t, true, sps.ConformanceWindowFlag)
	assert.Equal(t, uint32(10), sps.ConfWinRightOffset)
	assert.Equal(t, uint32(28), sps.ConfWinBottomOffset)
	assert.Equal(t, uint32(64), sps.CtbSizeY())
	assert.Equal(t, uint32(5), sps.PicWidthInCtbsY())
	assert.Equal(t, uint32(4), sps.PicHeightInCtbsY())
	assert.Equal(t, uint32(8), sps.Log2MaxPicOrderCntLsb())
	assert.Equal(t, uint32(1), sps.ChromaArrayType())
	assert.Equal(t, true, sps.SampleAdaptiveOffsetEnabledFlag)
	assert.Equal(t, 2, len(sps.StRps))
	assert.Equal(t, []int32{-1}, sps.StRps[0].DeltaPocS0)
	assert.Equal(t, []int32{-1, -2}, sps.StRps[1].DeltaPocS0)
	assert.Equal(t, 2, sps.StRps[1].NumUsedByCurr())
	assert.Equal(t, 0, sps.StRps[1].NumPositivePics())

	pps := p.pps
	assert.Equal(t, uint32(0), pps.Id)
	assert.Equal(t, false, pps.TilesEnabledFlag)
	assert.Equal(t, true, pps.EntropyCodingSyncEnabledFlag)
	assert.Equal(t, true, pps.ListsModificationPresentFlag)
	assert.Equal(t, true, pps.CabacInitPresentFlag)

	// 不修改时重新生成的rbsp与输入完全一致
	b, err := hevc.EncodeVps(p.vps)
	assert.Equal(t, nil, err)
	assert.Equal(t, p.vps.Rbsp(), b)
	b, err = hevc.EncodeSps(sps)
	assert.Equal(t, nil, err)
	assert.Equal(t, sps.Rbsp(), b)
	b, err = hevc.EncodePps(pps)
	assert.Equal(t, nil, err)
	assert.Equal(t, pps.Rbsp(), b)

	// 同一组配置生成的参数集一致
	s2 := innertest.NewStream(innertest.StreamConfig{
		Width:             300,
		Height:            200,
		ConformanceWindow: true,
		Sao:               true,
		Wpp:               true,
		Seed:              1,
	})
	p2 := parseStream(t, s2)
	assert.Equal(t, true, sps.SameCodingTools(p2.sps))
	assert.Equal(t, true, pps.SameCoding(p2.pps))

	s3 := innertest.NewStream(innertest.StreamConfig{
		Width:  300,
		Height: 200,
	})
	p3 := parseStream(t, s3)
	assert.Equal(t, false, sps.SameCodingTools(p3.sps))
	assert.Equal(t, false, pps.SameCoding(p3.pps))
}

func TestEncodeSps(t *testing.T) {
	s := innertest.NewStream(innertest.StreamConfig{
		Width:             300,
		Height:            200,
		ConformanceWindow: true,
		Sao:               true,
	})
	p := parseStream(t, s)

	c := p.sps.Clone()
	c.PicWidthInLumaSamples = 1280
	c.PicHeightInLumaSamples = 512
	c.ConformanceWindowFlag = false
	c.Ptl.GeneralLevelIdc = hevc.MinLevelForLumaPs(1280*512, c.Ptl.GeneralLevelIdc)
	b, err := hevc.EncodeSps(c)
	assert.Equal(t, nil, err)

	sps, err := hevc.DecodeSps(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(1280), sps.PicWidthInLumaSamples)
	assert.Equal(t, uint32(512), sps.PicHeightInLumaSamples)
	assert.Equal(t, false, sps.ConformanceWindowFlag)
	assert.Equal(t, uint32(20), sps.PicWidthInCtbsY())
	assert.Equal(t, true, sps.SameCodingTools(p.sps))
	assert.Equal(t, p.sps.StRps, sps.StRps)

	// 原始sps不受影响
	assert.Equal(t, uint32(320), p.sps.PicWidthInLumaSamples)

	// 655360个亮度采样点，3.1级就足够，不需要提升
	assert.Equal(t, uint8(93), sps.Ptl.GeneralLevelIdc)
}

func TestEncodePps(t *testing.T) {
	s := innertest.NewStream(innertest.StreamConfig{
		Width:                  256,
		Height:                 128,
		LoopFilterAcrossSlices: true,
	})
	p := parseStream(t, s)

	c := p.pps.Clone()
	c.SetTiles(3, 2, nil, nil)
	c.LoopFilterAcrossTilesEnabledFlag = true
	c.LoopFilterAcrossSlicesEnabledFlag = false
	b, err := hevc.EncodePps(c)
	assert.Equal(t, nil, err)
	pps, err := hevc.DecodePps(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, pps.TilesEnabledFlag)
	assert.Equal(t, uint32(2), pps.NumTileColumnsMinus1)
	assert.Equal(t, uint32(1), pps.NumTileRowsMinus1)
	assert.Equal(t, true, pps.UniformSpacingFlag)
	assert.Equal(t, true, pps.LoopFilterAcrossTilesEnabledFlag)
	assert.Equal(t, false, pps.LoopFilterAcrossSlicesEnabledFlag)
	assert.Equal(t, true, pps.SameCoding(p.pps))

	c.SetTiles(3, 1, []uint32{2, 5, 1}, []uint32{4})
	b, err = hevc.EncodePps(c)
	assert.Equal(t, nil, err)
	pps, err = hevc.DecodePps(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, pps.UniformSpacingFlag)
	assert.Equal(t, []uint32{1, 4}, pps.ColumnWidthMinus1)
	assert.Equal(t, 0, len(pps.RowHeightMinus1))

	// 1x1不开启tiles
	c.SetTiles(1, 1, nil, nil)
	b, err = hevc.EncodePps(c)
	assert.Equal(t, nil, err)
	pps, err = hevc.DecodePps(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, pps.TilesEnabledFlag)
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := hevc.DecodeSps([]byte{0x01})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	_, err = hevc.DecodePps([]byte{})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	_, err = hevc.DecodeVps([]byte{0x0C, 0x01})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
}

func TestMinLevelForLumaPs(t *testing.T) {
	assert.Equal(t, uint8(30), hevc.MinLevelForLumaPs(176*144, 0))
	assert.Equal(t, uint8(93), hevc.MinLevelForLumaPs(176*144, 93))
	assert.Equal(t, uint8(120), hevc.MinLevelForLumaPs(1920*1080, 90))
	assert.Equal(t, uint8(150), hevc.MinLevelForLumaPs(3840*2160, 0))
	assert.Equal(t, uint8(186), hevc.MinLevelForLumaPs(1<<30, 0))
}

func TestMinLevel(t *testing.T) {
	// 只看采样点数2级就够，但是宽度超过了Sqrt(122880*8)，并且2级只允许1列tile
	assert.Equal(t, uint8(60), hevc.MinLevelForLumaPs(1024*64, 60))
	assert.Equal(t, uint8(120), hevc.MinLevel(1024, 64, 4, 1, 60))
	assert.Equal(t, uint8(90), hevc.MinLevel(1024, 64, 2, 1, 60))
	assert.Equal(t, uint8(63), hevc.MinLevel(992, 64, 1, 1, 60))
	assert.Equal(t, uint8(60), hevc.MinLevel(991, 64, 1, 1, 60))
	assert.Equal(t, uint8(93), hevc.MinLevel(1280, 512, 3, 3, 0))
	assert.Equal(t, uint8(150), hevc.MinLevel(1280, 512, 6, 1, 0))
	assert.Equal(t, uint8(150), hevc.MinLevel(3840, 2160, 10, 11, 0))
	assert.Equal(t, uint8(180), hevc.MinLevel(3840, 2160, 11, 11, 0))
	assert.Equal(t, uint8(186), hevc.MinLevel(64, 64, 30, 1, 0))
	assert.Equal(t, uint8(123), hevc.MinLevel(64, 64, 1, 1, 123))
}

func sliceConfigs() []innertest.StreamConfig {
	return []innertest.StreamConfig{
		{Width: 256, Height: 128, NumFrames: 6, GopSize: 4},
		{Width: 256, Height: 256, NumFrames: 5, Wpp: true, Sao: true, LoopFilterAcrossSlices: true},
		{Width: 320, Height: 256, NumFrames: 4, SegmentsPerPicture: 3, DependentSlices: true, LoopFilterAcrossSlices: true},
		{Width: 256, Height: 192, NumFrames: 4, SegmentsPerPicture: 3, Wpp: true, Sao: true, PpsId: 5, Log2CtbSize: 5},
	}
}

func TestSliceHeaderIdentity(t *testing.T) {
	for i, config := range sliceConfigs() {
		config.Seed = int64(i)
		s := innertest.NewStream(config)
		p := parseStream(t, s)
		l := &lookup{sps: p.sps, pps: p.pps}

		k := 0
		for fi, pic := range s.Pictures {
			for _, seg := range pic.Segments {
				n := p.slices[k]
				k++

				sh, err := hevc.DecodeSliceHeader(n, l, l)
				assert.Equal(t, nil, err)
				assert.Equal(t, pic.NaluType, sh.NaluType)
				assert.Equal(t, seg.Address, sh.SegmentAddress)
				assert.Equal(t, seg.Address == 0, sh.FirstSliceSegmentInPicFlag)
				assert.Equal(t, seg.Dependent, sh.DependentSliceSegmentFlag)
				assert.Equal(t, config.PpsId, sh.PpsId)
				if !seg.Dependent {
					assert.Equal(t, pic.PocLsb, sh.PicOrderCntLsb)
					if fi == 0 {
						assert.Equal(t, hevc.SliceTypeI, sh.SliceType)
					}
				}
				assert.Equal(t, len(seg.Substreams)-1, len(sh.EntryPointOffsets))
				for j, off := range sh.EntryPointOffsets {
					assert.Equal(t, uint32(len(h2645.InsertEmulationPrevention(seg.Substreams[j]))), off)
				}

				var data []byte
				for _, sub := range seg.Substreams {
					data = append(data, sub...)
				}
				assert.Equal(t, data, n.Rbsp[sh.SliceDataOffset:])

				// 参数集不变时重新生成的header与输入一致
				b, err := hevc.EncodeSliceHeader(sh)
				assert.Equal(t, nil, err)
				assert.Equal(t, n.Rbsp[:sh.SliceDataOffset], b)
			}
		}
		assert.Equal(t, len(p.slices), k)
	}
}

// TestSliceHeaderRewrite 将tile的slice header按2x1的合并后参数集重新生成，再按合并后参数集解析
func TestSliceHeaderRewrite(t *testing.T) {
	for i, config := range sliceConfigs() {
		config.Seed = int64(i)
		s := innertest.NewStream(config)
		p := parseStream(t, s)
		private := &lookup{sps: p.sps, pps: p.pps}

		csps := p.sps.Clone()
		csps.PicWidthInLumaSamples *= 2
		b, err := hevc.EncodeSps(csps)
		assert.Equal(t, nil, err)
		csps, err = hevc.DecodeSps(b)
		assert.Equal(t, nil, err)
		cpps := p.pps.Clone()
		cpps.SetTiles(2, 1, nil, nil)
		cpps.LoopFilterAcrossTilesEnabledFlag = true
		cpps.LoopFilterAcrossSlicesEnabledFlag = false
		b, err = hevc.EncodePps(cpps)
		assert.Equal(t, nil, err)
		cpps, err = hevc.DecodePps(b)
		assert.Equal(t, nil, err)
		composite := &lookup{sps: csps, pps: cpps}

		tileW := p.sps.PicWidthInCtbsY()
		k := 0
		for _, pic := range s.Pictures {
			for _, seg := range pic.Segments {
				n := p.slices[k]
				k++

				sh, err := hevc.DecodeSliceHeader(n, private, composite)
				assert.Equal(t, nil, err)

				// 作为右边的tile
				sh.CountTile = 1
				sh.FirstSliceSegmentInPicFlag = false
				sh.DependentSliceSegmentFlag = seg.Dependent
				sh.SegmentAddress = tileW + (seg.Address/tileW)*2*tileW + seg.Address%tileW
				header, err := hevc.EncodeSliceHeader(sh)
				assert.Equal(t, nil, err)

				rbsp := append(header, n.Rbsp[sh.SliceDataOffset:]...)
				out := &hevc.Nalu{Type: n.Type, Category: n.Category, Header: n.Header, Rbsp: rbsp}
				sh2, err := hevc.DecodeSliceHeader(out, composite, composite)
				assert.Equal(t, nil, err)
				assert.Equal(t, false, sh2.FirstSliceSegmentInPicFlag)
				assert.Equal(t, sh.SegmentAddress, sh2.SegmentAddress)
				assert.Equal(t, seg.Dependent, sh2.DependentSliceSegmentFlag)
				assert.Equal(t, sh.SliceType, sh2.SliceType)
				assert.Equal(t, sh.PicOrderCntLsb, sh2.PicOrderCntLsb)
				assert.Equal(t, sh.SaoLumaFlag, sh2.SaoLumaFlag)
				assert.Equal(t, sh.EntryPointOffsets, sh2.EntryPointOffsets)
				assert.Equal(t, false, sh2.LoopFilterAcrossSlicesEnabledFlag)
				assert.Equal(t, n.Rbsp[sh.SliceDataOffset:], rbsp[sh2.SliceDataOffset:])
			}
		}
	}
}

func TestEncodeSliceHeaderErrors(t *testing.T) {
	s := innertest.NewStream(innertest.StreamConfig{Width: 256, Height: 128})
	p := parseStream(t, s)
	l := &lookup{sps: p.sps, pps: p.pps}
	sh, err := hevc.DecodeSliceHeader(p.slices[0], l, l)
	assert.Equal(t, nil, err)

	// 8个CTU，地址需要3位
	sh.FirstSliceSegmentInPicFlag = false
	sh.SegmentAddress = 8
	_, err = hevc.EncodeSliceHeader(sh)
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))

	// 既没有tiles也没有wpp，不允许有entry point
	assert.Equal(t, false, p.pps.TilesEnabledFlag)
	assert.Equal(t, false, p.pps.EntropyCodingSyncEnabledFlag)
	sh.SegmentAddress = 7
	_, err = hevc.EncodeSliceHeader(sh)
	assert.Equal(t, nil, err)
	sh.EntryPointOffsets = []uint32{3}
	_, err = hevc.EncodeSliceHeader(sh)
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))

	_, err = hevc.EncodeSliceHeader(&hevc.SliceHeader{})
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))

	// 找不到pps
	_, err = hevc.DecodeSliceHeader(p.slices[0], &lookup{}, l)
	assert.Equal(t, true, errors.Is(err, base.ErrCorruptBitstream))
	assert.Equal(t, true, errors.Is(err, base.ErrNotFound))
}

func TestCodec(t *testing.T) {
	var c hevc.Codec
	var psc hevc.ParamSetCodec = c
	s := innertest.NewStream(innertest.StreamConfig{Width: 256, Height: 128})
	p := parseStream(t, s)
	sps, err := psc.DecodeSps(p.sps.Rbsp())
	assert.Equal(t, nil, err)
	b, err := psc.EncodeSps(sps)
	assert.Equal(t, nil, err)
	assert.Equal(t, p.sps.Rbsp(), b)

	var shc hevc.SliceHeaderCodec = c
	l := &lookup{sps: p.sps, pps: p.pps}
	sh, err := shc.DecodeSliceHeader(p.slices[0], l, l)
	assert.Equal(t, nil, err)
	b, err = shc.EncodeSliceHeader(sh)
	assert.Equal(t, nil, err)
	assert.Equal(t, p.slices[0].Rbsp[:sh.SliceDataOffset], b)
}
