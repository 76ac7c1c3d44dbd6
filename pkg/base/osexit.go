// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
)

// 进程退出码，每类致命错误一个
const (
	ExitCodeOk                   = 0
	ExitCodeConfig               = 1
	ExitCodeIo                   = 2
	ExitCodeInvalidGeometry      = 3
	ExitCodeCorruptBitstream     = 4
	ExitCodeStreamLengthMismatch = 5
	ExitCodeInconsistentTiles    = 6
	ExitCodeUnsupported          = 7
	ExitCodeInterrupted          = 130
)

// ExitCodeOf 将错误映射为进程退出码
//
// 未知错误按配置错误处理
func ExitCodeOf(err error) int {
	switch {
	case err == nil:
		return ExitCodeOk
	case errors.Is(err, ErrIo):
		return ExitCodeIo
	case errors.Is(err, ErrInvalidGeometry):
		return ExitCodeInvalidGeometry
	case errors.Is(err, ErrCorruptBitstream):
		return ExitCodeCorruptBitstream
	case errors.Is(err, ErrStreamLengthMismatch):
		return ExitCodeStreamLengthMismatch
	case errors.Is(err, ErrInconsistentTiles):
		return ExitCodeInconsistentTiles
	case errors.Is(err, ErrUnsupported):
		return ExitCodeUnsupported
	case errors.Is(err, context.Canceled):
		return ExitCodeInterrupted
	}
	return ExitCodeConfig
}

func OsExitAndWaitPressIfWindows(code int) {
	if runtime.GOOS == "windows" {
		_, _ = fmt.Fprintf(os.Stderr, "Press Enter to exit...")
		r := bufio.NewReader(os.Stdin)
		_, _ = r.ReadByte()
	}
	os.Exit(code)
}
