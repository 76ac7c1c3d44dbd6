// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "strings"

// 版本信息相关
// 一部分版本信息使用了naza.bininfo，另外一些在本文件提供

// 版本，该变量由外部脚本修改维护
const TileMergeVersion = "v0.3.0"

var (
	TileMergeLibraryName = "tilemerge"
	TileMergeGithubRepo  = "github.com/q191201771/tilemerge"
	TileMergeGithubSite  = "https://github.com/q191201771/tilemerge"

	// e.g. tilemerge v0.3.0 (github.com/q191201771/tilemerge)
	TileMergeFullInfo = TileMergeLibraryName + " " + TileMergeVersion + " (" + TileMergeGithubRepo + ")"

	// e.g. 0.3.0
	TileMergeVersionDot string
)

func init() {
	TileMergeVersionDot = strings.TrimPrefix(TileMergeVersion, "v")
}
