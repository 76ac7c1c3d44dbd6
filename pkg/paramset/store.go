// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package paramset

import (
	"fmt"
	"sort"

	"github.com/q191201771/tilemerge/pkg/base"
	"github.com/q191201771/tilemerge/pkg/hevc"
)

type Kind uint8

const (
	KindVps Kind = iota + 1
	KindSps
	KindPps
)

func (k Kind) String() string {
	switch k {
	case KindVps:
		return "vps"
	case KindSps:
		return "sps"
	case KindPps:
		return "pps"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Store 按id保存参数集
//
// 写入只发生在读取码流的goroutine中，写入结束后可以被多个goroutine同时读取。
// First系列函数返回id最小的一个。
type Store struct {
	vps map[uint32]*hevc.Vps
	sps map[uint32]*hevc.Sps
	pps map[uint32]*hevc.Pps
}

var _ hevc.ParamSetLookup = &Store{}

func NewStore() *Store {
	return &Store{
		vps: make(map[uint32]*hevc.Vps),
		sps: make(map[uint32]*hevc.Sps),
		pps: make(map[uint32]*hevc.Pps),
	}
}

func (s *Store) StoreVps(vps *hevc.Vps) {
	if _, ok := s.vps[vps.Id]; ok {
		Log.Debugf("overwrite vps. id=%d", vps.Id)
	}
	s.vps[vps.Id] = vps
}

func (s *Store) StoreSps(sps *hevc.Sps) {
	if _, ok := s.sps[sps.Id]; ok {
		Log.Debugf("overwrite sps. id=%d", sps.Id)
	}
	s.sps[sps.Id] = sps
}

func (s *Store) StorePps(pps *hevc.Pps) {
	if _, ok := s.pps[pps.Id]; ok {
		Log.Debugf("overwrite pps. id=%d", pps.Id)
	}
	s.pps[pps.Id] = pps
}

func (s *Store) FirstVps() (*hevc.Vps, bool) {
	id, ok := lowest(s.vps)
	if !ok {
		return nil, false
	}
	return s.vps[id], true
}

func (s *Store) FirstSps() (*hevc.Sps, bool) {
	id, ok := lowest(s.sps)
	if !ok {
		return nil, false
	}
	return s.sps[id], true
}

func (s *Store) FirstPps() (*hevc.Pps, bool) {
	id, ok := lowest(s.pps)
	if !ok {
		return nil, false
	}
	return s.pps[id], true
}

// Ready vps、sps、pps是否都已经存在
func (s *Store) Ready() bool {
	return len(s.vps) > 0 && len(s.sps) > 0 && len(s.pps) > 0
}

func (s *Store) Vps(id uint32) (*hevc.Vps, error) {
	if v, ok := s.vps[id]; ok {
		return v, nil
	}
	return nil, base.NewErrNotFound(KindVps.String(), id)
}

func (s *Store) Sps(id uint32) (*hevc.Sps, error) {
	if v, ok := s.sps[id]; ok {
		return v, nil
	}
	return nil, base.NewErrNotFound(KindSps.String(), id)
}

func (s *Store) Pps(id uint32) (*hevc.Pps, error) {
	if v, ok := s.pps[id]; ok {
		return v, nil
	}
	return nil, base.NewErrNotFound(KindPps.String(), id)
}

// Get 返回值为*hevc.Vps、*hevc.Sps或*hevc.Pps
func (s *Store) Get(kind Kind, id uint32) (interface{}, error) {
	switch kind {
	case KindVps:
		return s.Vps(id)
	case KindSps:
		return s.Sps(id)
	case KindPps:
		return s.Pps(id)
	}
	return nil, base.NewErrNotFound(kind.String(), id)
}

// Ids 某类参数集所有的id，从小到大
func (s *Store) Ids(kind Kind) []uint32 {
	var ids []uint32
	switch kind {
	case KindVps:
		ids = keys(s.vps)
	case KindSps:
		ids = keys(s.sps)
	case KindPps:
		ids = keys(s.pps)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func keys[T any](m map[uint32]T) []uint32 {
	out := make([]uint32, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func lowest[T any](m map[uint32]T) (uint32, bool) {
	var (
		lo    uint32
		found bool
	)
	for id := range m {
		if !found || id < lo {
			lo = id
			found = true
		}
	}
	return lo, found
}
