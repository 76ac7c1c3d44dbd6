// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package merge

import (
	"bufio"
	"io"
	"os"

	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/h2645"
	"github.com/q191201771/tilemerge/pkg/mpegts"
)

// Sink 合并后码流的输出
//
// 只会被合并流程所在的goroutine调用
type Sink interface {
	// WriteAccessUnit
	//
	// @param au: 一帧中的所有nalu，每个都是nalu header + 转义后的payload，不包含start code
	WriteAccessUnit(au [][]byte) error

	Close() error
}

// AppendAccessUnit 按annexb格式追加一帧
//
// 每帧的第一个nalu以及vps、sps、pps使用4字节start code，其余使用3字节
//
// <ISO_IEC_23008-2_2013.pdf> <B.2>
func AppendAccessUnit(out []byte, au [][]byte) []byte {
	for i, nalu := range au {
		long := i == 0
		if !long && len(nalu) > 0 {
			t := h2645.H265ParseNaluType(nalu[0])
			long = t >= h2645.H265NaluTypeVps && t <= h2645.H265NaluTypePps
		}
		out = h2645.AppendAnnexb(out, nalu, long)
	}
	return out
}

// OpenSink 扩展名为.ts、.m2ts时输出ts文件，否则输出annexb格式的裸流
func OpenSink(path string, tsFps int) (Sink, error) {
	if IsTsPath(path) {
		fw := mpegts.NewFileWriter()
		if err := fw.Create(path); err != nil {
			return nil, base.NewErrIo("create", path, err)
		}
		return NewTsSink(fw, tsFps), nil
	}
	fp, err := os.Create(path)
	if err != nil {
		return nil, base.NewErrIo("create", path, err)
	}
	return NewEsSink(fp), nil
}

// ----- EsSink --------------------------------------------------------------------------------------------------------

type EsSink struct {
	w   io.Writer
	bw  *bufio.Writer
	buf []byte
}

// NewEsSink w实现了io.Closer时，Close时会被关闭
func NewEsSink(w io.Writer) *EsSink {
	return &EsSink{
		w:  w,
		bw: bufio.NewWriterSize(w, 256*1024),
	}
}

func (s *EsSink) WriteAccessUnit(au [][]byte) error {
	s.buf = AppendAccessUnit(s.buf[:0], au)
	_, err := s.bw.Write(s.buf)
	return err
}

func (s *EsSink) Close() error {
	err := s.bw.Flush()
	if c, ok := s.w.(io.Closer); ok {
		if err2 := c.Close(); err == nil {
			err = err2
		}
	}
	return err
}

// ----- TsSink --------------------------------------------------------------------------------------------------------

// TsSink 每帧一个PES，随机访问帧之前写入PAT/PMT
type TsSink struct {
	fw     *mpegts.FileWriter
	fps    uint64
	nFrame uint64
}

func NewTsSink(fw *mpegts.FileWriter, fps int) *TsSink {
	return &TsSink{
		fw:  fw,
		fps: uint64(fps),
	}
}

func (s *TsSink) WriteAccessUnit(au [][]byte) error {
	ts := s.nFrame * 90000 / s.fps
	frame := &mpegts.Frame{
		Pts: ts,
		Dts: ts,
		Key: h265.IsRandomAccess(au),
		Raw: AppendAccessUnit(nil, au),
	}
	s.nFrame++
	return s.fw.WriteFrame(frame)
}

func (s *TsSink) Close() error {
	return s.fw.Dispose()
}
