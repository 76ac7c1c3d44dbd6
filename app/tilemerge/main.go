// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// tilemerge 将多路使用相同编码参数的hevc码流按网格拼接成一路使用tiles的hevc码流
//
// 输入输出可以是annexb裸流文件，也可以是ts文件（按扩展名区分）
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/merge"
)

var defaultConfigFiles = []string{
	"./conf/tilemerge.conf.json",
	"../conf/tilemerge.conf.json",
}

func main() {
	config := parseFlag()

	if err := nazalog.Init(func(option *nazalog.Option) {
		*option = config.Log
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init nazalog failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(base.ExitCodeConfig)
	}
	base.LogoutStartInfo()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go base.RunSignalHandler(cancel)

	err := merge.Merge(ctx, *config)
	code := base.ExitCodeOf(err)
	if err != nil {
		nazalog.Errorf("merge failed. code=%d, err=%+v", code, err)
	} else {
		nazalog.Infof("merge succ. output=%s", config.Output)
	}
	nazalog.Sync()
	base.OsExitAndWaitPressIfWindows(code)
}

// parseFlag 命令行参数优先级高于配置文件
func parseFlag() *merge.Config {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file")
	i := flag.String("i", "", "specify input list file, one tile stream per line, in tile raster order")
	o := flag.String("o", "", "specify output file, .ts/.m2ts for mpegts, otherwise annexb")
	wdt := flag.Uint("wdt", 0, "entire width in luma samples, derived from tile streams if 0")
	hgt := flag.Uint("hgt", 0, "entire height in luma samples, derived from tile streams if 0")
	nt := flag.Int("nt", 0, "number of tiles, must equal ntc*ntr if set")
	ntc := flag.Uint("ntc", 0, "number of tile columns")
	ntr := flag.Uint("ntr", 0, "number of tile rows")
	u := flag.Int("u", -1, "uniform spacing, 1 or 0")
	f := flag.Int("f", -1, "max number of frames to merge, 0 means no limit")
	j := flag.Int("j", 0, "number of tiles rewritten in parallel")
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.TileMergeFullInfo)
		os.Exit(0)
	}

	rawContent, err := base.WrapReadConfigFile(*cf, defaultConfigFiles)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read conf failed. file=%s, err=%+v\n", *cf, err)
		base.OsExitAndWaitPressIfWindows(base.ExitCodeOf(err))
	}
	if rawContent == nil {
		rawContent = []byte("{}")
	}
	config, err := merge.ParseConf(rawContent)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s, err=%+v\n", *cf, err)
		base.OsExitAndWaitPressIfWindows(base.ExitCodeOf(err))
	}

	if *i != "" {
		config.InputListFile = *i
		config.Inputs = nil
	}
	if *o != "" {
		config.Output = *o
	}
	if *wdt != 0 {
		config.EntireWidth = uint32(*wdt)
	}
	if *hgt != 0 {
		config.EntireHeight = uint32(*hgt)
	}
	if *nt != 0 {
		config.NumTiles = *nt
	}
	if *ntc != 0 {
		config.NumTileColumns = uint32(*ntc)
	}
	if *ntr != 0 {
		config.NumTileRows = uint32(*ntr)
	}
	if *u != -1 {
		config.Uniform = *u != 0
	}
	if *f != -1 {
		config.FrameLimit = *f
	}
	if *j != 0 {
		config.ParallelTiles = *j
	}

	if (config.InputListFile == "" && len(config.Inputs) == 0) || config.Output == "" {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  ./bin/tilemerge -c ./conf/tilemerge.conf.json
  ./bin/tilemerge -i ./testdata/tiles.txt -o ./testdata/merged.h265 -ntc 2 -ntr 2
  ./bin/tilemerge -i ./testdata/tiles.txt -o ./testdata/merged.ts -ntc 3 -ntr 1 -u 0 -f 100 -j 4
`)
		base.OsExitAndWaitPressIfWindows(base.ExitCodeConfig)
	}
	return config
}
