// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package merge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tilemerge/pkg/base"
)

type Config struct {
	// InputListFile 每行一个tile码流的路径，#开头的行为注释。与Inputs同时存在时追加到Inputs之后
	InputListFile string   `json:"input_list_file"`
	Inputs        []string `json:"inputs"`
	Output        string   `json:"output"`

	// EntireWidth 合并后的宽高，单位亮度采样点，为0时由各tile的尺寸推导
	EntireWidth  uint32 `json:"entire_width"`
	EntireHeight uint32 `json:"entire_height"`

	// NumTiles 非0时必须等于NumTileColumns*NumTileRows
	NumTiles       int    `json:"num_tiles"`
	NumTileColumns uint32 `json:"num_tile_columns"`
	NumTileRows    uint32 `json:"num_tile_rows"`

	// Uniform 为false时使用ColumnWidths、RowHeights（单位CTU，前cols-1列、前rows-1行），为空时由各tile的尺寸推导
	Uniform      bool     `json:"uniform"`
	ColumnWidths []uint32 `json:"column_widths"`
	RowHeights   []uint32 `json:"row_heights"`

	// CtuSize 非0时用于校验输入码流的CTB大小
	CtuSize uint32 `json:"ctu_size"`

	// LevelIdc 非0时强制使用，否则根据合并后的宽高以及tile行列数自动提升
	LevelIdc uint8 `json:"level_idc"`

	// FrameLimit 最多合并多少帧，0表示直到码流结束
	FrameLimit int `json:"frame_limit"`

	// ParallelTiles 每帧内并行处理tile的goroutine个数
	ParallelTiles int `json:"parallel_tiles"`

	// RepeatParamSets 每个IRAP帧之前都写入合并后的参数集，否则只在码流头部写一次
	RepeatParamSets bool `json:"repeat_param_sets"`

	// TilePlacementByTs 第一个slice segment的地址通过tile scan地址映射得到，而不是直接使用tile的首个CTU地址
	TilePlacementByTs bool `json:"tile_placement_by_ts"`

	// TsFps 输出为ts文件时用于计算PTS
	TsFps int `json:"ts_fps"`

	Log nazalog.Option `json:"log"`
}

func LoadConf(confFile string) (*Config, error) {
	rawContent, err := os.ReadFile(confFile)
	if err != nil {
		return nil, base.NewErrIo("read conf", confFile, err)
	}
	return ParseConf(rawContent)
}

// ParseConf 解析json格式的配置，没有配置的字段使用默认值
func ParseConf(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, base.NewErrMergeConfig("unmarshal failed. err=%+v", err)
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, base.NewErrMergeConfig("parse failed. err=%+v", err)
	}
	if !j.Exist("uniform") {
		config.Uniform = true
	}
	if !j.Exist("parallel_tiles") {
		config.ParallelTiles = defaultParallelTiles
	}
	if !j.Exist("ts_fps") {
		config.TsFps = defaultTsFps
	}
	if !j.Exist("log.level") {
		config.Log.Level = nazalog.LevelInfo
	}
	if !j.Exist("log.filename") {
		config.Log.Filename = "./logs/tilemerge.log"
	}
	if !j.Exist("log.is_to_stdout") {
		config.Log.IsToStdout = true
	}
	if !j.Exist("log.is_rotate_daily") {
		config.Log.IsRotateDaily = true
	}
	if !j.Exist("log.short_file_flag") {
		config.Log.ShortFileFlag = true
	}
	return &config, nil
}

// ReadInputList 读取列表文件，空行以及#开头的行被忽略
func ReadInputList(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, base.NewErrIo("read input list", filename, err)
	}
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// Prepare 展开InputListFile，并检查配置项之间的约束
func (c *Config) Prepare() error {
	if c.InputListFile != "" {
		inputs, err := ReadInputList(c.InputListFile)
		if err != nil {
			return err
		}
		c.Inputs = append(c.Inputs, inputs...)
		c.InputListFile = ""
	}
	return c.Validate(len(c.Inputs))
}

// Validate
//
// @param numInputs: tile码流的个数
func (c *Config) Validate(numInputs int) error {
	if numInputs == 0 {
		return base.NewErrMergeConfig("no input")
	}
	if c.NumTileColumns == 0 || c.NumTileRows == 0 {
		return base.NewErrMergeConfig("tile columns and rows must be positive. cols=%d, rows=%d", c.NumTileColumns, c.NumTileRows)
	}
	n := int(c.NumTileColumns * c.NumTileRows)
	if c.NumTiles != 0 && c.NumTiles != n {
		return base.NewErrMergeConfig("num tiles mismatch. num=%d, cols=%d, rows=%d", c.NumTiles, c.NumTileColumns, c.NumTileRows)
	}
	if numInputs != n {
		return base.NewErrMergeConfig("num inputs mismatch. inputs=%d, cols=%d, rows=%d", numInputs, c.NumTileColumns, c.NumTileRows)
	}
	if !c.Uniform {
		if len(c.ColumnWidths) != 0 && len(c.ColumnWidths) < int(c.NumTileColumns)-1 {
			return base.NewErrMergeConfig("column widths too short. len=%d, cols=%d", len(c.ColumnWidths), c.NumTileColumns)
		}
		if len(c.RowHeights) != 0 && len(c.RowHeights) < int(c.NumTileRows)-1 {
			return base.NewErrMergeConfig("row heights too short. len=%d, rows=%d", len(c.RowHeights), c.NumTileRows)
		}
	}
	if c.CtuSize != 0 && c.CtuSize != 16 && c.CtuSize != 32 && c.CtuSize != 64 {
		return base.NewErrMergeConfig("invalid ctu size. size=%d", c.CtuSize)
	}
	if c.FrameLimit < 0 {
		return base.NewErrMergeConfig("invalid frame limit. limit=%d", c.FrameLimit)
	}
	if c.ParallelTiles <= 0 {
		c.ParallelTiles = defaultParallelTiles
	}
	if c.TsFps <= 0 {
		c.TsFps = defaultTsFps
	}
	return nil
}
