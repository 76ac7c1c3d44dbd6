// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package merge

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

const (
	defaultTsFps         = 25
	defaultParallelTiles = 1

	// 合并后参数集使用的nuh_temporal_id_plus1
	paramSetTemporalIdPlus1 = 1

	// debug级别下每路tile打印前多少个nalu
	maxDebugDumpNalu = 32
)
