// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package merge

import (
	"context"
	"fmt"
	"io"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/h2645"
	"github.com/q191201771/tilemerge/pkg/hevc"
	"github.com/q191201771/tilemerge/pkg/paramset"
	"github.com/q191201771/tilemerge/pkg/tile"
	"golang.org/x/sync/errgroup"
)

type state uint8

const (
	stateInit state = iota
	stateOpened
	stateCollected
	stateClosed
)

var stateMapping = map[state]string{
	stateInit:      "init",
	stateOpened:    "opened",
	stateCollected: "collected",
	stateClosed:    "closed",
}

func (s state) String() string {
	return stateMapping[s]
}

// Merger 将多路tile码流合并成一路使用tiles的码流
//
// 状态转换：Open -> CollectParams -> MergeFrame... -> Close
type Merger struct {
	config Config
	state  state

	psCodec    hevc.ParamSetCodec
	sliceCodec hevc.SliceHeaderCodec

	tiles []*TileStream
	sink  Sink

	grid      *tile.Grid
	maps      *tile.AddressMaps
	composite *paramset.Store

	// 合并后的vps、sps、pps，nalu header + 转义后的payload
	paramSets [][]byte

	// tile 0的第一个pps，其他pps必须与它编码方式一致
	basePps *hevc.Pps

	nFrame int
}

func NewMerger(config Config) *Merger {
	return &Merger{
		config:     config,
		psCodec:    hevc.Codec{},
		sliceCodec: hevc.Codec{},
		composite:  paramset.NewStore(),
	}
}

// Merge 完整的合并流程
func Merge(ctx context.Context, config Config) error {
	m := NewMerger(config)
	if err := m.Open(ctx); err != nil {
		_ = m.Close()
		return err
	}
	return m.Run(ctx)
}

// Open 打开所有输入以及输出文件
func (m *Merger) Open(ctx context.Context) error {
	if err := m.config.Prepare(); err != nil {
		return err
	}
	tiles := make([]*TileStream, 0, len(m.config.Inputs))
	for i, path := range m.config.Inputs {
		ts, err := OpenTileStream(ctx, i, path)
		if err != nil {
			closeTiles(tiles)
			return err
		}
		tiles = append(tiles, ts)
	}
	sink, err := OpenSink(m.config.Output, m.config.TsFps)
	if err != nil {
		closeTiles(tiles)
		return err
	}
	return m.OpenStreams(tiles, sink)
}

// OpenStreams 使用已经打开的输入以及输出
func (m *Merger) OpenStreams(tiles []*TileStream, sink Sink) error {
	if m.state != stateInit {
		return base.NewErrMergeConfig("invalid state. state=%s", m.state)
	}
	if err := m.config.Validate(len(tiles)); err != nil {
		return err
	}
	m.tiles = tiles
	m.sink = sink
	m.state = stateOpened
	Log.Infof("merger opened. tiles=%d, grid=%dx%d, output=%s", len(tiles), m.config.NumTileColumns, m.config.NumTileRows, m.config.Output)
	return nil
}

// Run CollectParams，然后逐帧合并直到码流结束、达到帧数限制或者ctx被取消，最后Close
func (m *Merger) Run(ctx context.Context) (err error) {
	defer func() {
		if closeErr := m.Close(); err == nil {
			err = closeErr
		}
	}()

	if err = m.CollectParams(); err != nil {
		Log.Errorf("collect params failed. err=%+v", err)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			Log.Infof("merge canceled. frames=%d", m.nFrame)
			return ctx.Err()
		default:
		}
		if m.config.FrameLimit > 0 && m.nFrame >= m.config.FrameLimit {
			Log.Infof("reach frame limit. frames=%d", m.nFrame)
			return nil
		}
		if err = m.MergeFrame(ctx); err != nil {
			if err == io.EOF {
				Log.Infof("all tile streams ended. frames=%d", m.nFrame)
				return nil
			}
			Log.Errorf("merge frame failed. frame=%d, err=%+v", m.nFrame, err)
			return err
		}
	}
}

// CollectParams 读取每路tile的第一组参数集，校验一致性，计算tile划分并生成合并后的参数集
func (m *Merger) CollectParams() error {
	if m.state != stateOpened {
		return base.NewErrMergeConfig("invalid state. state=%s", m.state)
	}

	n := len(m.tiles)
	vpss := make([]*hevc.Vps, n)
	spss := make([]*hevc.Sps, n)
	ppss := make([]*hevc.Pps, n)
	for i, ts := range m.tiles {
		vps, sps, pps, err := ts.FirstParamSets()
		if err != nil {
			return err
		}
		if pps.TilesEnabledFlag {
			return base.NewErrUnsupported(fmt.Sprintf("tile %d pps enables tiles", i))
		}
		if i > 0 {
			if !sps.SameCodingTools(spss[0]) {
				return base.NewErrInconsistentTiles(i, "sps coding tools differ from tile 0")
			}
			if !pps.SameCoding(ppss[0]) {
				return base.NewErrInconsistentTiles(i, "pps coding differs from tile 0")
			}
		}
		Log.Infof("[TILE%d] params. vps=%d, sps=%d, pps=%d, size=%dx%d, ctb=%d, profile=%d, level=%d",
			i, vps.Id, sps.Id, pps.Id, sps.PicWidthInLumaSamples, sps.PicHeightInLumaSamples, sps.CtbSizeY(),
			sps.Ptl.GeneralProfileIdc, sps.Ptl.GeneralLevelIdc)
		vpss[i], spss[i], ppss[i] = vps, sps, pps
	}

	ctu := spss[0].CtbSizeY()
	if m.config.CtuSize != 0 && m.config.CtuSize != ctu {
		return base.NewErrMergeConfig("ctu size mismatch. config=%d, stream=%d", m.config.CtuSize, ctu)
	}

	params, err := m.tileParams(spss)
	if err != nil {
		return err
	}
	if params.EntireWidth%spss[0].MinCbSizeY() != 0 || params.EntireHeight%spss[0].MinCbSizeY() != 0 {
		return base.NewErrInvalidGeometry("entire size not multiple of min cb size. size=%dx%d, mincb=%d",
			params.EntireWidth, params.EntireHeight, spss[0].MinCbSizeY())
	}
	grid, err := tile.Compute(params)
	if err != nil {
		return err
	}
	for i, sps := range spss {
		w, h := descriptorLumaSize(&grid.Tiles[i], params)
		if sps.PicWidthInLumaSamples != w || sps.PicHeightInLumaSamples != h {
			return base.NewErrInconsistentTiles(i, "size mismatch. expected=%dx%d, actual=%dx%d",
				w, h, sps.PicWidthInLumaSamples, sps.PicHeightInLumaSamples)
		}
	}
	m.grid = grid
	m.maps = tile.Build(grid)
	for i := range grid.Tiles {
		Log.Debugf("tile descriptor. %s", grid.Tiles[i].String())
	}

	m.basePps = ppss[0]
	if err = m.buildComposite(vpss[0], spss[0], ppss[0], params.EntireWidth, params.EntireHeight); err != nil {
		return err
	}
	m.state = stateCollected
	return nil
}

// MergeFrame 合并一帧
//
// @return err: 所有tile码流同时结束时返回io.EOF
func (m *Merger) MergeFrame(ctx context.Context) error {
	if m.state != stateCollected {
		return base.NewErrMergeConfig("invalid state. state=%s", m.state)
	}

	n := len(m.tiles)
	outs := make([]*tileOutput, n)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.config.ParallelTiles)
	for k := 0; k < n; k++ {
		k := k
		g.Go(func() error {
			pic, err := m.tiles[k].NextPicture()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			outs[k], err = m.rewritePicture(k, pic)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var ended []int
	for k, out := range outs {
		if out == nil {
			ended = append(ended, k)
		}
	}
	if len(ended) == n {
		return io.EOF
	}
	if len(ended) > 0 {
		return base.NewErrStreamLengthMismatch(m.nFrame, ended)
	}

	for k := 1; k < n; k++ {
		if outs[k].naluType != outs[0].naluType {
			return base.NewErrInconsistentTiles(k, "nalu type mismatch. frame=%d, tile0=%d, actual=%d", m.nFrame, outs[0].naluType, outs[k].naluType)
		}
		if outs[k].pocLsb != outs[0].pocLsb {
			return base.NewErrInconsistentTiles(k, "poc lsb mismatch. frame=%d, tile0=%d, actual=%d", m.nFrame, outs[0].pocLsb, outs[k].pocLsb)
		}
	}

	var au [][]byte
	if m.nFrame == 0 || (m.config.RepeatParamSets && h2645.H265IsIrapNalu(outs[0].naluType)) {
		au = append(au, m.paramSets...)
	}
	au = append(au, outs[0].seis...)
	for _, out := range outs {
		au = append(au, out.segments...)
	}
	if err := m.sink.WriteAccessUnit(au); err != nil {
		return base.NewErrIo("write", m.config.Output, err)
	}

	Log.Debugf("merged frame. frame=%d, type=%d, poc=%d, nalus=%d", m.nFrame, outs[0].naluType, outs[0].pocLsb, len(au))
	m.nFrame++
	return nil
}

// Close 关闭输出以及所有输入，可以重复调用
func (m *Merger) Close() error {
	if m.state == stateClosed {
		return nil
	}
	m.state = stateClosed

	var errs []error
	if m.sink != nil {
		if err := m.sink.Close(); err != nil {
			errs = append(errs, base.NewErrIo("close", m.config.Output, err))
		}
	}
	for _, ts := range m.tiles {
		if err := ts.Close(); err != nil {
			errs = append(errs, base.NewErrIo("close", ts.Name(), err))
		}
	}
	Log.Infof("merger closed. frames=%d", m.nFrame)
	return nazaerrors.CombineErrors(errs...)
}

func (m *Merger) Grid() *tile.Grid {
	return m.grid
}

func (m *Merger) AddressMaps() *tile.AddressMaps {
	return m.maps
}

// Composite 合并后的参数集
func (m *Merger) Composite() *paramset.Store {
	return m.composite
}

// FrameCount 已经合并的帧数
func (m *Merger) FrameCount() int {
	return m.nFrame
}

// ----- private -------------------------------------------------------------------------------------------------------

// tileOutput 一个tile在一帧中改写后的nalu
type tileOutput struct {
	naluType uint8
	pocLsb   uint32
	seis     [][]byte
	segments [][]byte
}

// tileParams 根据配置以及各tile的sps得到tile划分的参数，没有配置的部分由tile的尺寸推导
func (m *Merger) tileParams(spss []*hevc.Sps) (tile.Params, error) {
	c := &m.config
	sps0 := spss[0]
	ctu := sps0.CtbSizeY()
	cols, rows := c.NumTileColumns, c.NumTileRows

	p := tile.Params{
		EntireWidth:   c.EntireWidth,
		EntireHeight:  c.EntireHeight,
		CtuWidth:      ctu,
		CtuHeight:     ctu,
		Rows:          rows,
		Cols:          cols,
		Uniform:       c.Uniform,
		MinWidthCtus:  1,
		MinHeightCtus: 1,
	}
	if p.EntireWidth == 0 {
		for col := uint32(0); col < cols; col++ {
			p.EntireWidth += spss[col].PicWidthInLumaSamples
		}
	}
	if p.EntireHeight == 0 {
		for row := uint32(0); row < rows; row++ {
			p.EntireHeight += spss[row*cols].PicHeightInLumaSamples
		}
	}
	if !c.Uniform {
		p.ColumnWidths = c.ColumnWidths
		p.RowHeights = c.RowHeights
		if len(p.ColumnWidths) == 0 {
			for col := uint32(0); col+1 < cols; col++ {
				p.ColumnWidths = append(p.ColumnWidths, spss[col].PicWidthInCtbsY())
			}
		}
		if len(p.RowHeights) == 0 {
			for row := uint32(0); row+1 < rows; row++ {
				p.RowHeights = append(p.RowHeights, spss[row*cols].PicHeightInCtbsY())
			}
		}
	}

	if cols*rows > 1 && sps0.Ptl.IsMainFamily() {
		profile := sps0.Ptl.GeneralProfileIdc
		if profile < hevc.ProfileIdcMain || profile > hevc.ProfileIdcMainStillPicture {
			profile = hevc.ProfileIdcMain
		}
		p.MinWidthCtus, p.MinHeightCtus = tile.MinSizeForProfile(profile, ctu, ctu)
	}
	Log.Infof("tile params. entire=%dx%d, ctu=%d, grid=%dx%d, uniform=%t, min=%dx%d",
		p.EntireWidth, p.EntireHeight, ctu, cols, rows, p.Uniform, p.MinWidthCtus, p.MinHeightCtus)
	return p, nil
}

// descriptorLumaSize tile在合并后图像中覆盖的亮度采样点宽高，最右列以及最下行可能不足整数个CTU
func descriptorLumaSize(d *tile.Descriptor, p tile.Params) (uint32, uint32) {
	w := d.WidthCtus * p.CtuWidth
	if remain := p.EntireWidth - d.LeftEdgeCtus()*p.CtuWidth; remain < w {
		w = remain
	}
	h := d.HeightCtus * p.CtuHeight
	if remain := p.EntireHeight - d.TopEdgeCtus()*p.CtuHeight; remain < h {
		h = remain
	}
	return w, h
}

// buildComposite 以tile 0的参数集为基础生成合并后的参数集
//
// 编码后再重新解析一次存入composite store，保证slice header改写时使用的参数集与输出的完全一致
func (m *Merger) buildComposite(vps0 *hevc.Vps, sps0 *hevc.Sps, pps0 *hevc.Pps, width, height uint32) error {
	g := m.grid
	level := m.config.LevelIdc
	if level == 0 {
		level = hevc.MinLevel(width, height, g.Cols, g.Rows, sps0.Ptl.GeneralLevelIdc)
	}

	vps := vps0.Clone()
	vps.Ptl.GeneralLevelIdc = level

	sps := sps0.Clone()
	sps.Ptl.GeneralLevelIdc = level
	sps.PicWidthInLumaSamples = width
	sps.PicHeightInLumaSamples = height
	sps.ConformanceWindowFlag = false
	sps.ConfWinLeftOffset, sps.ConfWinRightOffset, sps.ConfWinTopOffset, sps.ConfWinBottomOffset = 0, 0, 0, 0

	pps := pps0.Clone()
	if g.Uniform {
		pps.SetTiles(g.Cols, g.Rows, nil, nil)
	} else {
		pps.SetTiles(g.Cols, g.Rows, g.ColumnWidths, g.RowHeights)
	}
	pps.LoopFilterAcrossTilesEnabledFlag = true
	pps.LoopFilterAcrossSlicesEnabledFlag = false

	vpsRbsp, err := m.psCodec.EncodeVps(vps)
	if err != nil {
		return err
	}
	spsRbsp, err := m.psCodec.EncodeSps(sps)
	if err != nil {
		return err
	}
	ppsRbsp, err := m.psCodec.EncodePps(pps)
	if err != nil {
		return err
	}

	if vps, err = m.psCodec.DecodeVps(vpsRbsp); err != nil {
		return err
	}
	if sps, err = m.psCodec.DecodeSps(spsRbsp); err != nil {
		return err
	}
	if pps, err = m.psCodec.DecodePps(ppsRbsp); err != nil {
		return err
	}
	m.composite.StoreVps(vps)
	m.composite.StoreSps(sps)
	m.composite.StorePps(pps)

	m.paramSets = [][]byte{
		marshalNalu(h2645.H265NaluTypeVps, vpsRbsp),
		marshalNalu(h2645.H265NaluTypeSps, spsRbsp),
		marshalNalu(h2645.H265NaluTypePps, ppsRbsp),
	}
	Log.Infof("composite params. size=%dx%d, level=%d, tiles=%t, grid=%dx%d, uniform=%t",
		width, height, level, pps.TilesEnabledFlag, g.Cols, g.Rows, g.Uniform)
	return nil
}

// rewritePicture 改写一个tile的一帧，只访问这个tile自己的状态以及只读的合并后参数集
func (m *Merger) rewritePicture(k int, pic *Picture) (*tileOutput, error) {
	ts := m.tiles[k]
	out := &tileOutput{}
	if k == 0 {
		for _, sei := range pic.Seis {
			out.seis = append(out.seis, sei.Marshal())
		}
	}

	for j, nalu := range pic.Segments {
		sh, err := m.sliceCodec.DecodeSliceHeader(nalu, ts.Store(), m.composite)
		if err != nil {
			return nil, fmt.Errorf("%w. tile=%d, frame=%d, segment=%d", err, k, m.nFrame, j)
		}
		sh.CountTile = k
		if pps, _ := ts.Store().Pps(sh.InputPpsId); pps != nil && pps != m.basePps && !pps.SameCoding(m.basePps) {
			return nil, base.NewErrInconsistentTiles(k, "pps coding differs from tile 0. frame=%d, pps=%d", m.nFrame, sh.InputPpsId)
		}
		if j == 0 {
			out.naluType = sh.NaluType
			out.pocLsb = sh.PicOrderCntLsb
			sh.FirstSliceSegmentInPicFlag = k == 0
			if m.config.TilePlacementByTs {
				sh.SegmentAddress = m.maps.TsToRs[m.maps.TileTsStart(k)]
			} else {
				sh.SegmentAddress = m.grid.Tiles[k].FirstCtuRsAddr
			}
		} else {
			sh.FirstSliceSegmentInPicFlag = false
			if sh.SegmentAddress, err = m.maps.TranslateLocal(k, sh.InputSegmentAddress); err != nil {
				return nil, base.NewErrCorruptBitstream(fmt.Sprintf("tile=%d, segment=%d", k, j), err)
			}
		}

		b, err := m.rewriteSegment(nalu, sh)
		if err != nil {
			return nil, fmt.Errorf("%w. tile=%d, frame=%d, segment=%d", err, k, m.nFrame, j)
		}
		out.segments = append(out.segments, b)
	}
	return out, nil
}

// rewriteSegment 重新生成slice segment nalu
//
// header以及每个子码流分别添加防竞争字节，entry point使用转义后子码流的实际大小
func (m *Merger) rewriteSegment(nalu *hevc.Nalu, sh *hevc.SliceHeader) ([]byte, error) {
	subs, err := splitSubstreams(nalu, sh)
	if err != nil {
		return nil, err
	}
	escaped := make([][]byte, len(subs))
	sh.EntryPointOffsets = nil
	for i, sub := range subs {
		escaped[i] = h2645.InsertEmulationPrevention(sub)
		if i < len(subs)-1 {
			sh.EntryPointOffsets = append(sh.EntryPointOffsets, uint32(len(escaped[i])))
		}
	}

	header, err := m.sliceCodec.EncodeSliceHeader(sh)
	if err != nil {
		return nil, err
	}
	header = h2645.InsertEmulationPrevention(header)

	size := 2 + len(header)
	for _, e := range escaped {
		size += len(e)
	}
	out := make([]byte, 0, size)
	out = append(out, nalu.Header[:]...)
	out = append(out, header...)
	for _, e := range escaped {
		out = append(out, e...)
	}
	return out, nil
}

// splitSubstreams 按entry point把slice data切分成子码流（rbsp）
//
// entry point是转义后的字节数，通过读取时记录的防竞争字节位置换算
func splitSubstreams(nalu *hevc.Nalu, sh *hevc.SliceHeader) ([][]byte, error) {
	escapedLen := len(nalu.Rbsp) + len(nalu.EpPositions)
	escPos := h2645.RbspToEscapedPos(sh.SliceDataOffset, nalu.EpPositions)
	rbspPos := sh.SliceDataOffset

	subs := make([][]byte, 0, len(sh.EntryPointOffsets)+1)
	for i, off := range sh.EntryPointOffsets {
		escEnd := escPos + int(off)
		if escEnd >= escapedLen {
			return nil, base.NewErrCorruptBitstream(fmt.Sprintf("entry point beyond nalu. idx=%d, end=%d, size=%d", i, escEnd, escapedLen), nil)
		}
		rbspEnd := h2645.EscapedToRbspPos(escEnd, nalu.EpPositions)
		subs = append(subs, nalu.Rbsp[rbspPos:rbspEnd])
		escPos, rbspPos = escEnd, rbspEnd
	}
	subs = append(subs, nalu.Rbsp[rbspPos:])
	return subs, nil
}

func marshalNalu(typ uint8, rbsp []byte) []byte {
	out := make([]byte, 0, 2+len(rbsp)+len(rbsp)/64)
	out = append(out, typ<<1, paramSetTemporalIdPlus1)
	return append(out, h2645.InsertEmulationPrevention(rbsp)...)
}

func closeTiles(tiles []*TileStream) {
	for _, ts := range tiles {
		if err := ts.Close(); err != nil {
			Log.Warnf("close tile stream failed. path=%s, err=%+v", ts.Name(), err)
		}
	}
}
