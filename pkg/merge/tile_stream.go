// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/h2645"
	"github.com/q191201771/tilemerge/pkg/hevc"
	"github.com/q191201771/tilemerge/pkg/paramset"
)

// Picture 一个tile码流中的一帧
type Picture struct {
	// Seis 第一个slice segment之前的prefix sei
	Seis []*hevc.Nalu

	// Segments 第一个元素的first_slice_segment_in_pic_flag为1
	Segments []*hevc.Nalu
}

// TileStream 一路tile码流
//
// 拥有自己的文件句柄以及参数集，只会被一个goroutine使用
type TileStream struct {
	idx    int
	path   string
	closer io.Closer

	scanner *h2645.Scanner
	store   *paramset.Store
	codec   hevc.ParamSetCodec

	// 已经读取但还未被消费的nalu
	pending []*hevc.Nalu
	eos     bool

	dump base.LogDump
}

// OpenTileStream 扩展名为.ts、.m2ts时按ts文件解析，否则按annexb格式解析
func OpenTileStream(ctx context.Context, idx int, path string) (*TileStream, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, base.NewErrIo("open", path, err)
	}
	var r io.Reader = fp
	if IsTsPath(path) {
		r = newTsEsReader(ctx, path, fp)
	}
	ts := NewTileStream(idx, path, r)
	ts.closer = fp
	return ts, nil
}

// NewTileStream
//
// @param r: annexb格式的字节流
func NewTileStream(idx int, name string, r io.Reader) *TileStream {
	return &TileStream{
		idx:     idx,
		path:    name,
		scanner: h2645.NewScanner(r),
		store:   paramset.NewStore(),
		codec:   hevc.Codec{},
		dump:    base.NewLogDump(Log, fmt.Sprintf("[TILE%d] ", idx), maxDebugDumpNalu),
	}
}

func (ts *TileStream) Idx() int {
	return ts.idx
}

func (ts *TileStream) Name() string {
	return ts.path
}

// Store tile码流自己的参数集
func (ts *TileStream) Store() *paramset.Store {
	return ts.store
}

func (ts *TileStream) Close() error {
	if ts.closer == nil {
		return nil
	}
	err := ts.closer.Close()
	ts.closer = nil
	return err
}

// FirstParamSets 持续读取，直到vps、sps、pps都至少有一个
func (ts *TileStream) FirstParamSets() (*hevc.Vps, *hevc.Sps, *hevc.Pps, error) {
	var buffered []*hevc.Nalu
	for !ts.store.Ready() {
		nalu, err := ts.readNalu()
		if err != nil {
			if err == io.EOF {
				return nil, nil, nil, base.NewErrCorruptBitstream(fmt.Sprintf("tile %d ended before parameter sets", ts.idx), nil)
			}
			return nil, nil, nil, err
		}
		switch nalu.Category {
		case hevc.CategoryVps, hevc.CategorySps, hevc.CategoryPps:
			if err = ts.handleParamSet(nalu); err != nil {
				return nil, nil, nil, err
			}
		case hevc.CategoryCodedSlice:
			return nil, nil, nil, base.NewErrCorruptBitstream(fmt.Sprintf("tile %d slice before parameter sets", ts.idx), nil)
		default:
			buffered = append(buffered, nalu)
		}
	}
	ts.pending = append(buffered, ts.pending...)

	vps, _ := ts.store.FirstVps()
	sps, _ := ts.store.FirstSps()
	pps, _ := ts.store.FirstPps()
	return vps, sps, pps, nil
}

// NextPicture 读取下一帧的所有slice segment，以及它们之前的prefix sei
//
// @return err: 码流结束时返回io.EOF
func (ts *TileStream) NextPicture() (*Picture, error) {
	pic := &Picture{}
	for {
		nalu, err := ts.readNalu()
		if err == io.EOF {
			if len(pic.Segments) > 0 {
				return pic, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		started := len(pic.Segments) > 0
		switch nalu.Category {
		case hevc.CategoryCodedSlice:
			if len(nalu.Rbsp) == 0 {
				return nil, base.NewErrCorruptBitstream("empty slice segment", nil)
			}
			first := nalu.Rbsp[0]&0x80 != 0
			if !started && !first {
				return nil, base.NewErrCorruptBitstream(fmt.Sprintf("tile %d picture does not start with first slice segment", ts.idx), nil)
			}
			if started && first {
				ts.unread(nalu)
				return pic, nil
			}
			pic.Segments = append(pic.Segments, nalu)
		case hevc.CategoryVps, hevc.CategorySps, hevc.CategoryPps, hevc.CategorySei:
			if started {
				ts.unread(nalu)
				return pic, nil
			}
			if nalu.Category == hevc.CategorySei {
				pic.Seis = append(pic.Seis, nalu)
				continue
			}
			if err = ts.handleParamSet(nalu); err != nil {
				return nil, err
			}
		default:
			// aud, eos, eob, suffix sei等不进入合并后的码流
			if nalu.Type == h2645.H265NaluTypeAud && started {
				ts.unread(nalu)
				return pic, nil
			}
			Log.Debugf("[TILE%d] drop nalu. %s", ts.idx, nalu.String())
		}
	}
}

// handleParamSet 第一次出现的id存入store，再次出现时内容必须一致
func (ts *TileStream) handleParamSet(nalu *hevc.Nalu) error {
	var (
		id  uint32
		old []byte
	)
	switch nalu.Category {
	case hevc.CategoryVps:
		vps, err := ts.codec.DecodeVps(nalu.Rbsp)
		if err != nil {
			return err
		}
		id = vps.Id
		if v, err := ts.store.Vps(id); err == nil {
			old = v.Rbsp()
		} else {
			ts.store.StoreVps(vps)
		}
	case hevc.CategorySps:
		sps, err := ts.codec.DecodeSps(nalu.Rbsp)
		if err != nil {
			return err
		}
		id = sps.Id
		if v, err := ts.store.Sps(id); err == nil {
			old = v.Rbsp()
		} else {
			ts.store.StoreSps(sps)
		}
	case hevc.CategoryPps:
		pps, err := ts.codec.DecodePps(nalu.Rbsp)
		if err != nil {
			return err
		}
		id = pps.Id
		if v, err := ts.store.Pps(id); err == nil {
			old = v.Rbsp()
		} else {
			ts.store.StorePps(pps)
		}
	}

	if old == nil {
		Log.Debugf("[TILE%d] store %s. id=%d", ts.idx, nalu.Category, id)
		return nil
	}
	if !bytes.Equal(old, nalu.Rbsp) {
		return base.NewErrInconsistentTiles(ts.idx, "%s changed mid-stream. id=%d", nalu.Category, id)
	}
	return nil
}

func (ts *TileStream) readNalu() (*hevc.Nalu, error) {
	if len(ts.pending) > 0 {
		nalu := ts.pending[0]
		ts.pending = ts.pending[1:]
		return nalu, nil
	}
	if ts.eos {
		return nil, io.EOF
	}
	for {
		u, err := ts.scanner.Next()
		if err != nil {
			switch {
			case errors.Is(err, base.ErrEmptyNalu):
				Log.Warnf("[TILE%d] empty nalu. count=%d", ts.idx, ts.scanner.Count())
				continue
			case errors.Is(err, base.ErrTruncated):
				Log.Warnf("[TILE%d] no start code found, treat as end of stream. path=%s", ts.idx, ts.path)
				ts.eos = true
				return nil, io.EOF
			case err == io.EOF:
				ts.eos = true
				return nil, io.EOF
			case errors.Is(err, base.ErrIo):
				return nil, err
			}
			return nil, base.NewErrIo("read", ts.path, err)
		}

		nalu, err := hevc.NewNalu(u)
		if err != nil {
			return nil, err
		}
		if ts.dump.ShouldDump() {
			ts.dump.Outf("read nalu. %s, payload=%s", nalu.String(), base.HexPrefix(u.Payload, 16))
		}
		if nalu.LayerId != 0 {
			Log.Debugf("[TILE%d] drop nalu of enhancement layer. %s", ts.idx, nalu.String())
			continue
		}
		return nalu, nil
	}
}

func (ts *TileStream) unread(nalu *hevc.Nalu) {
	ts.pending = append([]*hevc.Nalu{nalu}, ts.pending...)
}
