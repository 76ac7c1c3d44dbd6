// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

// ParamSetLookup 按id查找参数集，由paramset.Store实现
type ParamSetLookup interface {
	Sps(id uint32) (*Sps, error)
	Pps(id uint32) (*Pps, error)
	FirstPps() (*Pps, bool)
}

// ParamSetCodec 参数集的解析与生成
type ParamSetCodec interface {
	DecodeVps(rbsp []byte) (*Vps, error)
	DecodeSps(rbsp []byte) (*Sps, error)
	DecodePps(rbsp []byte) (*Pps, error)
	EncodeVps(vps *Vps) ([]byte, error)
	EncodeSps(sps *Sps) ([]byte, error)
	EncodePps(pps *Pps) ([]byte, error)
}

// SliceHeaderCodec slice segment header的解析与生成
type SliceHeaderCodec interface {
	DecodeSliceHeader(nalu *Nalu, private ParamSetLookup, composite ParamSetLookup) (*SliceHeader, error)
	EncodeSliceHeader(sh *SliceHeader) ([]byte, error)
}

// Codec 无状态，每次调用内部各自创建BitReader/BitWriter，可以被多个goroutine同时使用
type Codec struct{}

var (
	_ ParamSetCodec    = Codec{}
	_ SliceHeaderCodec = Codec{}
)

func (Codec) DecodeVps(rbsp []byte) (*Vps, error) { return DecodeVps(rbsp) }
func (Codec) DecodeSps(rbsp []byte) (*Sps, error) { return DecodeSps(rbsp) }
func (Codec) DecodePps(rbsp []byte) (*Pps, error) { return DecodePps(rbsp) }
func (Codec) EncodeVps(vps *Vps) ([]byte, error)  { return EncodeVps(vps) }
func (Codec) EncodeSps(sps *Sps) ([]byte, error)  { return EncodeSps(sps) }
func (Codec) EncodePps(pps *Pps) ([]byte, error)  { return EncodePps(pps) }

func (Codec) DecodeSliceHeader(nalu *Nalu, private ParamSetLookup, composite ParamSetLookup) (*SliceHeader, error) {
	return DecodeSliceHeader(nalu, private, composite)
}

func (Codec) EncodeSliceHeader(sh *SliceHeader) ([]byte, error) {
	return EncodeSliceHeader(sh)
}
