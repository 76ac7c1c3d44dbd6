// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package h2645

import (
	"bufio"
	"io"

	"github.com/q191201771/tilemerge/pkg/base"
)

// Unit 从字节流中分割出的一个nalu
type Unit struct {
	// nalu header以及rbsp，已去除防竞争字节
	Payload []byte

	// 被去除的0x03在转义后nalu（包含nalu header）中的位置
	EpPositions []int
}

// Scanner 从annexb格式的字节流中逐个读取nalu
//
// 非并发安全
type Scanner struct {
	r       *bufio.Reader
	started bool
	eof     bool
	buf     []byte
	count   int // 已经返回的nalu个数
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r: bufio.NewReaderSize(r, 64*1024),
	}
}

// Next 读取下一个nalu
//
// @return err:
//   - base.ErrEmptyNalu 两个start code之间没有数据，调用方可以继续调用Next
//   - base.ErrTruncated 整个流中没有start code
//   - io.EOF            流结束
//   - 其他              底层reader的错误
func (s *Scanner) Next() (Unit, error) {
	if !s.started {
		if err := s.skipToFirstStartCode(); err != nil {
			return Unit{}, err
		}
		s.started = true
	}
	if s.eof {
		return Unit{}, io.EOF
	}

	s.buf = s.buf[:0]
	for {
		c, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				s.eof = true
				break
			}
			return Unit{}, err
		}
		s.buf = append(s.buf, c)
		n := len(s.buf)
		if c == 0x01 && n >= 3 && s.buf[n-2] == 0x00 && s.buf[n-3] == 0x00 {
			s.buf = s.buf[:n-3]
			break
		}
	}

	// 尾部的0x00是trailing_zero_8bits，或者是下一个4字节start code的首字节
	raw := s.buf
	for len(raw) > 0 && raw[len(raw)-1] == 0x00 {
		raw = raw[:len(raw)-1]
	}
	if len(raw) == 0 {
		if s.eof {
			return Unit{}, io.EOF
		}
		return Unit{}, base.ErrEmptyNalu
	}

	payload, eps := RemoveEmulationPrevention(raw)
	s.count++
	return Unit{
		Payload:     payload,
		EpPositions: eps,
	}, nil
}

// Count 已经读取的nalu个数
func (s *Scanner) Count() int {
	return s.count
}

func (s *Scanner) skipToFirstStartCode() error {
	zeroCount := 0
	skipped := 0
	for {
		c, err := s.r.ReadByte()
		if err != nil {
			if err != io.EOF {
				return err
			}
			if skipped == 0 {
				return io.EOF
			}
			return base.ErrTruncated
		}
		if c == 0x01 && zeroCount >= 2 {
			if skipped > zeroCount {
				Log.Warnf("skip leading garbage before first start code. size=%d", skipped-zeroCount)
			}
			return nil
		}
		skipped++
		if c == 0x00 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}
}
