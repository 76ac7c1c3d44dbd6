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
	"context"
	"io"
	"strings"

	astits "github.com/asticode/go-astits"
	"github.com/q191201771/tilemerge/pkg/base"
)

// IsTsPath 按扩展名判断是否为ts文件
func IsTsPath(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".ts") || strings.HasSuffix(p, ".m2ts")
}

// tsEsReader 将ts流中第一路hevc视频的PES负载拼接成annexb字节流
type tsEsReader struct {
	path string
	dmx  *astits.Demuxer
	pid  uint16
	buf  []byte
	err  error
}

func newTsEsReader(ctx context.Context, path string, r io.Reader) *tsEsReader {
	return &tsEsReader{
		path: path,
		dmx:  astits.NewDemuxer(ctx, bufio.NewReader(r)),
	}
}

func (r *tsEsReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fill()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *tsEsReader) fill() {
	d, err := r.dmx.NextData()
	if err != nil {
		if err == astits.ErrNoMorePackets {
			if r.pid == 0 {
				r.err = base.NewErrIo("demux ts", r.path, astits.ErrNoMorePackets)
				return
			}
			r.err = io.EOF
			return
		}
		r.err = base.NewErrIo("demux ts", r.path, err)
		return
	}

	if d.PMT != nil && r.pid == 0 {
		for _, es := range d.PMT.ElementaryStreams {
			if es.StreamType == astits.StreamTypeH265Video {
				r.pid = es.ElementaryPID
				Log.Debugf("found hevc stream in ts. path=%s, pid=%d", r.path, r.pid)
				break
			}
		}
		return
	}
	if d.PES == nil || r.pid == 0 || d.FirstPacket == nil {
		return
	}
	if d.FirstPacket.Header.PID != r.pid {
		return
	}
	r.buf = d.PES.Data
}
