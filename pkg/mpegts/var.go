// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"errors"
	"fmt"

	"github.com/q191201771/naza/pkg/nazalog"
)

var Log = nazalog.GetGlobalLogger()

var ErrMpegts = errors.New("tilemerge.mpegts: invalid ts data")

const PacketSize = 188

const (
	syncByte uint8 = 0x47

	PidPat   uint16 = 0
	PidPmt   uint16 = 0x1000
	PidVideo uint16 = 0x100

	// ProgramNumber PAT中唯一的节目
	ProgramNumber uint16 = 1

	// StreamIdVideo stream_id of PES Header
	StreamIdVideo uint8 = 0xe0

	// StreamTypeHevc stream_type of PMT
	//
	// <ISO_IEC_13818-1.pdf> <Table 2-34>
	StreamTypeHevc uint8 = 0x24

	// delay PTS相对于PCR的延迟，单位1/90000秒，即700毫秒
	delay uint64 = 63000
)

func wrapErr(format string, a ...interface{}) error {
	return fmt.Errorf("%w. %s", ErrMpegts, fmt.Sprintf(format, a...))
}
