// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/naza/pkg/nazalog"
)

// LogDump 按nalu打印的调试日志，debug级别下只打印前debugMaxNum次，trace级别下全部打印
type LogDump struct {
	log         nazalog.Logger
	prefix      string
	debugMaxNum int

	debugCount int
}

// NewLogDump
//
// @param prefix:      每条日志的前缀，比如"[TILE1] "
// @param debugMaxNum: 日志最小级别为debug时，使用debug打印日志次数的阈值
func NewLogDump(log nazalog.Logger, prefix string, debugMaxNum int) LogDump {
	return LogDump{
		log:         log,
		prefix:      prefix,
		debugMaxNum: debugMaxNum,
	}
}

// Count 已经打印的次数，trace级别下不计数
func (ld *LogDump) Count() int {
	return ld.debugCount
}

func (ld *LogDump) ShouldDump() bool {
	switch ld.log.GetOption().Level {
	case nazalog.LevelTrace:
		return true
	case nazalog.LevelDebug:
		if ld.debugCount >= ld.debugMaxNum {
			return false
		}
		ld.debugCount++
		return true
	}
	return false
}

// Outf
//
// 调用之前需调用 ShouldDump，避免不需要打印时构造实参的开销
func (ld *LogDump) Outf(format string, v ...interface{}) {
	ld.log.Out(ld.log.GetOption().Level, 3, ld.prefix+fmt.Sprintf(format, v...))
}

// HexPrefix b的前n个字节的十六进制形式
func HexPrefix(b []byte, n int) string {
	if len(b) > n {
		return hex.EncodeToString(b[:n]) + "..."
	}
	return hex.EncodeToString(b)
}
