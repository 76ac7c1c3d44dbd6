// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package h2645_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tilemerge/pkg/h2645"
)

func TestInsertEmulationPrevention(t *testing.T) {
	golden := []struct {
		in  []byte
		out []byte
	}{
		{[]byte{}, []byte{}},
		{[]byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{[]byte{0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x01}},
		{[]byte{0x00, 0x00, 0x02}, []byte{0x00, 0x00, 0x03, 0x02}},
		{[]byte{0x00, 0x00, 0x03}, []byte{0x00, 0x00, 0x03, 0x03}},
		{[]byte{0x00, 0x00, 0x04}, []byte{0x00, 0x00, 0x04}},
		{[]byte{0x00, 0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x00, 0x01}},
		{[]byte{0x80, 0x00}, []byte{0x80, 0x00, 0x03}},
		// 四个0x00，尾部追加0x03
		{[]byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03}},
	}
	for _, item := range golden {
		assert.Equal(t, item.out, h2645.InsertEmulationPrevention(item.in))
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	rbsp, eps := h2645.RemoveEmulationPrevention([]byte{0x40, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03})
	assert.Equal(t, []byte{0x40, 0x00, 0x00, 0x01, 0x00, 0x00}, rbsp)
	assert.Equal(t, []int{3, 7}, eps)

	// 0x03后面的字节大于3，不是防竞争字节
	rbsp, eps = h2645.RemoveEmulationPrevention([]byte{0x00, 0x00, 0x03, 0x04})
	assert.Equal(t, []byte{0x00, 0x00, 0x03, 0x04}, rbsp)
	assert.Equal(t, 0, len(eps))
}

func TestEmulationPreventionRoundTrip(t *testing.T) {
	alphabet := []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x80, 0xFF}
	r := rand.New(rand.NewSource(20240601))
	for i := 0; i < 2000; i++ {
		x := make([]byte, r.Intn(64))
		for j := range x {
			x[j] = alphabet[r.Intn(len(alphabet))]
		}
		switch i % 3 {
		case 0:
			x = append(x, 0x80)
		case 1:
			x = append(x, 0x01, 0x00, 0x00) // cabac_zero_word结尾
		case 2:
			x = append(x, 0x03)
		}

		escaped := h2645.InsertEmulationPrevention(x)
		assertScannable(t, escaped)

		rbsp, eps := h2645.RemoveEmulationPrevention(escaped)
		assert.Equal(t, x, rbsp)
		assert.Equal(t, len(escaped)-len(x), len(eps))
	}
}

// TestEmulationPreventionTrailingZero 尾部追加0x03的规则导致插入操作不是单射：
// rbsp以奇数个0x00结尾时，与同样内容再跟一个0x03的rbsp转义结果相同，去除时按后者还原。
// 真实的rbsp以rbsp_stop_one_bit所在的非0字节结尾，或者后面跟成对的cabac_zero_word，
// 所以不会出现这种输入，成对的0x00结尾可以正常还原。
func TestEmulationPreventionTrailingZero(t *testing.T) {
	a := []byte{0x01, 0x00}
	b := []byte{0x01, 0x00, 0x03}
	assert.Equal(t, []byte{0x01, 0x00, 0x03}, h2645.InsertEmulationPrevention(a))
	assert.Equal(t, []byte{0x01, 0x00, 0x03}, h2645.InsertEmulationPrevention(b))
	rbsp, eps := h2645.RemoveEmulationPrevention(h2645.InsertEmulationPrevention(a))
	assert.Equal(t, b, rbsp)
	assert.Equal(t, 0, len(eps))

	// 三个0x00结尾同样无法还原
	c := []byte{0x80, 0x00, 0x00, 0x00}
	escaped := h2645.InsertEmulationPrevention(c)
	assert.Equal(t, []byte{0x80, 0x00, 0x00, 0x03, 0x00, 0x03}, escaped)
	rbsp, _ = h2645.RemoveEmulationPrevention(escaped)
	assert.Equal(t, []byte{0x80, 0x00, 0x00, 0x00, 0x03}, rbsp)

	// cabac_zero_word成对出现，可以还原
	for _, x := range [][]byte{
		{0x80, 0x00, 0x00},
		{0x80, 0x00, 0x00, 0x00, 0x00},
	} {
		rbsp, _ = h2645.RemoveEmulationPrevention(h2645.InsertEmulationPrevention(x))
		assert.Equal(t, x, rbsp)
	}
}

func TestPosConversion(t *testing.T) {
	x := []byte{0xAA, 0x00, 0x00, 0x01, 0xBB, 0x00, 0x00, 0x00, 0xCC}
	escaped := h2645.InsertEmulationPrevention(x)
	_, eps := h2645.RemoveEmulationPrevention(escaped)
	assert.Equal(t, []int{3, 8}, eps)
	for i := 0; i <= len(x); i++ {
		e := h2645.RbspToEscapedPos(i, eps)
		assert.Equal(t, i, h2645.EscapedToRbspPos(e, eps))
		if i < len(x) {
			assert.Equal(t, x[i], escaped[e])
		}
	}
}

// 转义后的数据中不能出现 00 00 00, 00 00 01, 00 00 02，00 00 03只能作为防竞争字节出现
func assertScannable(t *testing.T, b []byte) {
	for i := 0; i+2 < len(b); i++ {
		if b[i] != 0x00 || b[i+1] != 0x00 {
			continue
		}
		assert.Equal(t, true, b[i+2] == 0x03 || b[i+2] > 0x03)
		if b[i+2] == 0x03 && i+3 < len(b) {
			assert.Equal(t, true, b[i+3] <= 0x03)
		}
	}
	assert.Equal(t, false, bytes.HasSuffix(b, []byte{0x00}))
}
