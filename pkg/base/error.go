// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer = errors.New("tilemerge: buffer too short")
	ErrIo          = errors.New("tilemerge: io error")
)

func NewErrIo(op string, path string, err error) error {
	return fmt.Errorf("%w. op=%s, path=%s, err=%v", ErrIo, op, path, err)
}

// ----- pkg/h2645 -----------------------------------------------------------------------------------------------------

var (
	// ErrEmptyNalu 两个start code之间没有数据，可恢复
	ErrEmptyNalu = errors.New("tilemerge.h2645: empty nalu")

	// ErrTruncated 整个流中没有找到start code，调用方按流结束处理
	ErrTruncated = errors.New("tilemerge.h2645: no start code found")
)

// ----- pkg/hevc ------------------------------------------------------------------------------------------------------

var (
	ErrCorruptBitstream = errors.New("tilemerge.hevc: corrupt bitstream")
	ErrUnsupported      = errors.New("tilemerge.hevc: unsupported syntax")
)

func NewErrUnsupported(what string) error {
	return fmt.Errorf("%w. what=%s", ErrUnsupported, what)
}

func NewErrCorruptBitstream(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w. what=%s", ErrCorruptBitstream, what)
	}
	return fmt.Errorf("%w. what=%s, err=%w", ErrCorruptBitstream, what, err)
}

// ----- pkg/paramset --------------------------------------------------------------------------------------------------

var ErrNotFound = errors.New("tilemerge.paramset: parameter set not found")

func NewErrNotFound(kind string, id uint32) error {
	return fmt.Errorf("%w. kind=%s, id=%d", ErrNotFound, kind, id)
}

// ----- pkg/tile ------------------------------------------------------------------------------------------------------

var ErrInvalidGeometry = errors.New("tilemerge.tile: invalid geometry")

func NewErrInvalidGeometry(format string, a ...interface{}) error {
	return fmt.Errorf("%w. %s", ErrInvalidGeometry, fmt.Sprintf(format, a...))
}

// ----- pkg/merge -----------------------------------------------------------------------------------------------------

var (
	ErrMergeConfig          = errors.New("tilemerge.merge: invalid config")
	ErrInconsistentTiles    = errors.New("tilemerge.merge: tile streams are inconsistent")
	ErrStreamLengthMismatch = errors.New("tilemerge.merge: tile streams have different lengths")
)

func NewErrMergeConfig(format string, a ...interface{}) error {
	return fmt.Errorf("%w. %s", ErrMergeConfig, fmt.Sprintf(format, a...))
}

func NewErrInconsistentTiles(tileIdx int, format string, a ...interface{}) error {
	return fmt.Errorf("%w. tile=%d, %s", ErrInconsistentTiles, tileIdx, fmt.Sprintf(format, a...))
}

func NewErrStreamLengthMismatch(frameIdx int, ended []int) error {
	return fmt.Errorf("%w. frame=%d, ended tiles=%v", ErrStreamLengthMismatch, frameIdx, ended)
}
