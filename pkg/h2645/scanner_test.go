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
	"io"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/h2645"
)

func TestScanner(t *testing.T) {
	var stream []byte
	stream = h2645.AppendAnnexb(stream, []byte{0x40, 0x01, 0x0C}, true)
	stream = h2645.AppendAnnexb(stream, []byte{0x42, 0x01, 0x00, 0x00, 0x03, 0x01, 0x80}, false)
	stream = append(stream, 0x00, 0x00) // trailing_zero_8bits
	stream = h2645.AppendAnnexb(stream, []byte{0x26, 0x01, 0xAF, 0x00, 0x00, 0x03}, true)

	s := h2645.NewScanner(bytes.NewReader(stream))

	u, err := s.Next()
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x40, 0x01, 0x0C}, u.Payload)
	assert.Equal(t, 0, len(u.EpPositions))

	u, err = s.Next()
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x42, 0x01, 0x00, 0x00, 0x01, 0x80}, u.Payload)
	assert.Equal(t, []int{4}, u.EpPositions)

	u, err = s.Next()
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x26, 0x01, 0xAF, 0x00, 0x00}, u.Payload)
	assert.Equal(t, []int{5}, u.EpPositions)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 3, s.Count())
}

func TestScannerEmptyNalu(t *testing.T) {
	stream := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x40, 0x01}
	s := h2645.NewScanner(bytes.NewReader(stream))
	_, err := s.Next()
	assert.Equal(t, base.ErrEmptyNalu, err)
	u, err := s.Next()
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x40, 0x01}, u.Payload)
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerNoStartCode(t *testing.T) {
	s := h2645.NewScanner(bytes.NewReader([]byte{0x12, 0x34, 0x00, 0x00}))
	_, err := s.Next()
	assert.Equal(t, base.ErrTruncated, err)

	s = h2645.NewScanner(bytes.NewReader(nil))
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerLeadingGarbage(t *testing.T) {
	stream := []byte{0xFF, 0xFE, 0x00, 0x00, 0x00, 0x01, 0x44, 0x01, 0xC1}
	s := h2645.NewScanner(bytes.NewReader(stream))
	u, err := s.Next()
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x44, 0x01, 0xC1}, u.Payload)
}
