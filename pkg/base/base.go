// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package base 提供被其他多个package依赖的基础内容，自身不依赖任何package
package base

import (
	"os"
	"strings"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
)

var startTime string

var readableTimeLayout = "2006-01-02 15:04:05.999 Z0700 MST"

// ReadableNowTime 当前时间，可读字符串形式
func ReadableNowTime() string {
	return time.Now().Format(readableTimeLayout)
}

func GetWd() string {
	dir, _ := os.Getwd()
	return dir
}

func LogoutStartInfo() {
	Log.Infof("     start: %s", startTime)
	Log.Infof("        wd: %s", GetWd())
	Log.Infof("      args: %s", strings.Join(os.Args, " "))
	Log.Infof("   bininfo: %s", bininfo.StringifySingleLine())
	Log.Infof("   version: %s", TileMergeFullInfo)
	Log.Infof("    github: %s", TileMergeGithubSite)
}

// WrapReadConfigFile 读取配置文件
//
// @param theConfigFile:      命令行指定的配置文件，为空时按顺序尝试defaultConfigFiles
// @return rawContent: 没有找到任何配置文件时返回nil，调用方只使用命令行参数
func WrapReadConfigFile(theConfigFile string, defaultConfigFiles []string) ([]byte, error) {
	if theConfigFile == "" {
		for _, dcf := range defaultConfigFiles {
			fi, err := os.Stat(dcf)
			if err == nil && fi.Size() > 0 && !fi.IsDir() {
				Log.Warnf("config file did not specify in the command line, using %s.", dcf)
				theConfigFile = dcf
				break
			}
		}
		if theConfigFile == "" {
			return nil, nil
		}
	}

	rawContent, err := os.ReadFile(theConfigFile)
	if err != nil {
		return nil, NewErrIo("read conf", theConfigFile, err)
	}
	return rawContent, nil
}

func init() {
	startTime = ReadableNowTime()
}
