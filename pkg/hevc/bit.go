// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"math/bits"

	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tilemerge/pkg/base"
)

// BitReader 在nazabits.BitReader的基础上记录当前读取到的bit位置
//
// 重写参数集和slice header时，需要知道每个语法元素在rbsp中的位置，未修改的部分按bit原样拷贝
type BitReader struct {
	core nazabits.BitReader
	pos  uint
}

func NewBitReader(b []byte) *BitReader {
	return &BitReader{
		core: nazabits.NewBitReader(b),
	}
}

// Pos 已读取的bit数
func (r *BitReader) Pos() uint {
	return r.pos
}

func (r *BitReader) ReadFlag() (bool, error) {
	v, err := r.core.ReadBits8(1)
	if err != nil {
		return false, nazaerrors.Wrap(err)
	}
	r.pos++
	return v == 1, nil
}

// ReadBits 读取n位，n不大于32
func (r *BitReader) ReadBits(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	v, err := r.core.ReadBits32(n)
	if err != nil {
		return 0, nazaerrors.Wrap(err)
	}
	r.pos += n
	return v, nil
}

// Skip 跳过n位，n可以大于32
func (r *BitReader) Skip(n uint) error {
	for n > 0 {
		m := n
		if m > 32 {
			m = 32
		}
		if _, err := r.ReadBits(m); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

// ReadUe ue(v)
func (r *BitReader) ReadUe() (uint32, error) {
	v, err := r.core.ReadGolomb()
	if err != nil {
		return 0, nazaerrors.Wrap(err)
	}
	r.pos += uint(2*(bits.Len64(uint64(v)+1)-1) + 1)
	return v, nil
}

// ReadSe se(v)
func (r *BitReader) ReadSe() (int32, error) {
	k, err := r.ReadUe()
	if err != nil {
		return 0, err
	}
	if k%2 == 1 {
		return int32((k + 1) / 2), nil
	}
	return -int32(k / 2), nil
}

// ReadUeMax 读取ue(v)并检查取值上限，用于在语法错误时避免按错误的值分配内存
func (r *BitReader) ReadUeMax(max uint32, what string) (uint32, error) {
	v, err := r.ReadUe()
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, base.NewErrCorruptBitstream(what, nil)
	}
	return v, nil
}

// BitWriter 基于nazabits.BitWriter，空间不够时自动扩容
type BitWriter struct {
	buf  []byte
	core nazabits.BitWriter
	pos  uint
}

func NewBitWriter(capacity int) *BitWriter {
	if capacity < 16 {
		capacity = 16
	}
	w := &BitWriter{
		buf: make([]byte, capacity),
	}
	w.core = nazabits.NewBitWriter(w.buf)
	return w
}

// Pos 已写入的bit数
func (w *BitWriter) Pos() uint {
	return w.pos
}

func (w *BitWriter) IsByteAligned() bool {
	return w.pos%8 == 0
}

func (w *BitWriter) WriteFlag(b bool) {
	w.grow(1)
	if b {
		w.core.WriteBit(1)
	} else {
		w.core.WriteBit(0)
	}
	w.pos++
}

// WriteBits 写入v的低n位，n不大于32
func (w *BitWriter) WriteBits(n uint, v uint32) {
	if n == 0 {
		return
	}
	w.grow(n)
	if n > 16 {
		w.core.WriteBits16(n-16, uint16(v>>16))
		w.core.WriteBits16(16, uint16(v))
	} else {
		w.core.WriteBits16(n, uint16(v))
	}
	w.pos += n
}

// WriteUe ue(v)
func (w *BitWriter) WriteUe(v uint32) {
	x := uint64(v) + 1
	n := uint(bits.Len64(x))
	// n-1个前导0，然后是n位的x
	w.WriteBits(n-1, 0)
	if n > 32 {
		w.WriteBits(n-32, uint32(x>>32))
		w.WriteBits(32, uint32(x))
		return
	}
	w.WriteBits(n, uint32(x))
}

// WriteSe se(v)
func (w *BitWriter) WriteSe(v int32) {
	if v > 0 {
		w.WriteUe(uint32(v)*2 - 1)
	} else {
		w.WriteUe(uint32(-int64(v)) * 2)
	}
}

// WriteTrailingBits rbsp_trailing_bits()，也用于slice header的byte_alignment()
func (w *BitWriter) WriteTrailingBits() {
	w.WriteFlag(true)
	for !w.IsByteAligned() {
		w.WriteFlag(false)
	}
}

// CopyBits 拷贝src中[from, to)范围内的bit
func (w *BitWriter) CopyBits(src []byte, from, to uint) {
	for p := from; p < to; {
		n := to - p
		if n > 8 {
			n = 8
		}
		w.WriteBits(n, uint32(peekBits(src, p, n)))
		p += n
	}
}

// Bytes 已写入的数据，最后一个字节不足8位时低位补0
func (w *BitWriter) Bytes() []byte {
	return w.buf[:(w.pos+7)/8]
}

func (w *BitWriter) grow(n uint) {
	if w.pos+n <= uint(len(w.buf))*8 {
		return
	}

	// nazabits.BitWriter不支持替换底层内存，扩容时新建一个并重放已写入的数据
	old := w.buf
	oldPos := w.pos
	w.buf = make([]byte, len(old)*2+int(n/8)+16)
	w.core = nazabits.NewBitWriter(w.buf)
	full := oldPos / 8
	for i := uint(0); i < full; i++ {
		w.core.WriteBits8(8, old[i])
	}
	if rest := oldPos % 8; rest > 0 {
		w.core.WriteBits8(rest, old[full]>>(8-rest))
	}
}

// peekBits 读取b中从第pos位开始的n位（n不大于8），超出b的部分按0处理
func peekBits(b []byte, pos uint, n uint) uint8 {
	idx := pos / 8
	off := pos % 8
	var v uint16
	if idx < uint(len(b)) {
		v = uint16(b[idx]) << 8
	}
	if idx+1 < uint(len(b)) {
		v |= uint16(b[idx+1])
	}
	v <<= off
	return uint8(v >> (16 - n))
}

// rbspStopBitPos rbsp_stop_one_bit的位置，即rbsp中最后一个值为1的bit
func rbspStopBitPos(b []byte) (uint, error) {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return uint(i)*8 + 7 - uint(bits.TrailingZeros8(b[i])), nil
		}
	}
	return 0, base.NewErrCorruptBitstream("rbsp_stop_one_bit not found", nil)
}

// bitsEqual 比较a中[aFrom, aTo)与b中[bFrom, bTo)的bit是否完全一致
func bitsEqual(a []byte, aFrom, aTo uint, b []byte, bFrom, bTo uint) bool {
	if aTo-aFrom != bTo-bFrom {
		return false
	}
	for n := aTo - aFrom; n > 0; {
		m := n
		if m > 8 {
			m = 8
		}
		if peekBits(a, aFrom, m) != peekBits(b, bFrom, m) {
			return false
		}
		aFrom += m
		bFrom += m
		n -= m
	}
	return true
}

// spliceBits 将src中[pos, pos+n)的bit替换为v的低n位，其余部分不变
func spliceBits(src []byte, pos uint, n uint, v uint32) []byte {
	w := NewBitWriter(len(src) + 1)
	w.CopyBits(src, 0, pos)
	w.WriteBits(n, v)
	w.CopyBits(src, pos+n, uint(len(src))*8)
	return w.Bytes()
}
