// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"bufio"
	"os"
)

// FileWriter 写ts文件，文件头部以及每个关键帧之前写入PAT/PMT
type FileWriter struct {
	fp     *os.File
	bw     *bufio.Writer
	packer *Packer

	nFrame int
}

func NewFileWriter() *FileWriter {
	return &FileWriter{
		packer: NewPacker(),
	}
}

func (fw *FileWriter) Create(filename string) (err error) {
	if fw.fp, err = os.Create(filename); err != nil {
		return
	}
	fw.bw = bufio.NewWriter(fw.fp)
	return
}

func (fw *FileWriter) WriteFrame(frame *Frame) error {
	if fw.bw == nil {
		return ErrMpegts
	}
	if fw.nFrame == 0 || frame.Key {
		if err := fw.Write(fw.packer.PackPsi()); err != nil {
			return err
		}
	}
	fw.nFrame++
	return fw.Write(fw.packer.PackFrame(frame))
}

func (fw *FileWriter) Write(b []byte) (err error) {
	if fw.bw == nil {
		return ErrMpegts
	}
	_, err = fw.bw.Write(b)
	return
}

func (fw *FileWriter) Dispose() error {
	if fw.fp == nil {
		return ErrMpegts
	}
	err := fw.bw.Flush()
	if err2 := fw.fp.Close(); err == nil {
		err = err2
	}
	return err
}

func (fw *FileWriter) Name() string {
	if fw.fp == nil {
		return ""
	}
	return fw.fp.Name()
}
