// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tilemerge
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"github.com/q191201771/tilemerge/pkg/base"
)

const maxDpbSize = 16

// ShortTermRps st_ref_pic_set()解析并推导后的结果
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.7> <7.4.8>
type ShortTermRps struct {
	DeltaPocS0      []int32
	UsedByCurrPicS0 []bool
	DeltaPocS1      []int32
	UsedByCurrPicS1 []bool
}

func (rps *ShortTermRps) NumNegativePics() int {
	return len(rps.DeltaPocS0)
}

func (rps *ShortTermRps) NumPositivePics() int {
	return len(rps.DeltaPocS1)
}

func (rps *ShortTermRps) NumDeltaPocs() int {
	return len(rps.DeltaPocS0) + len(rps.DeltaPocS1)
}

// NumUsedByCurr 当前图像参考的短期参考帧个数，计算NumPicTotalCurr时使用
func (rps *ShortTermRps) NumUsedByCurr() int {
	n := 0
	for _, u := range rps.UsedByCurrPicS0 {
		if u {
			n++
		}
	}
	for _, u := range rps.UsedByCurrPicS1 {
		if u {
			n++
		}
	}
	return n
}

// parseShortTermRps
//
// @param idx:   stRpsIdx，slice header中的st_ref_pic_set的idx等于num
// @param num:   num_short_term_ref_pic_sets
// @param sets:  sps中已经解析出的st_ref_pic_set
func parseShortTermRps(r *BitReader, idx uint32, num uint32, sets []ShortTermRps) (rps ShortTermRps, err error) {
	interRpsPred := false
	if idx != 0 {
		if interRpsPred, err = r.ReadFlag(); err != nil {
			return
		}
	}

	if !interRpsPred {
		var numNegative, numPositive, d uint32
		var used bool
		if numNegative, err = r.ReadUeMax(maxDpbSize, "num_negative_pics"); err != nil {
			return
		}
		if numPositive, err = r.ReadUeMax(maxDpbSize, "num_positive_pics"); err != nil {
			return
		}
		poc := int32(0)
		for i := uint32(0); i < numNegative; i++ {
			if d, err = r.ReadUeMax(1<<15-1, "delta_poc_s0_minus1"); err != nil {
				return
			}
			if used, err = r.ReadFlag(); err != nil {
				return
			}
			poc -= int32(d) + 1
			rps.DeltaPocS0 = append(rps.DeltaPocS0, poc)
			rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, used)
		}
		poc = 0
		for i := uint32(0); i < numPositive; i++ {
			if d, err = r.ReadUeMax(1<<15-1, "delta_poc_s1_minus1"); err != nil {
				return
			}
			if used, err = r.ReadFlag(); err != nil {
				return
			}
			poc += int32(d) + 1
			rps.DeltaPocS1 = append(rps.DeltaPocS1, poc)
			rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, used)
		}
		return
	}

	var deltaIdxMinus1, absDeltaRpsMinus1 uint32
	var sign bool
	if idx == num {
		if deltaIdxMinus1, err = r.ReadUe(); err != nil {
			return
		}
	}
	if deltaIdxMinus1+1 > idx {
		err = base.NewErrCorruptBitstream("delta_idx_minus1", nil)
		return
	}
	if sign, err = r.ReadFlag(); err != nil {
		return
	}
	if absDeltaRpsMinus1, err = r.ReadUeMax(1<<15-1, "abs_delta_rps_minus1"); err != nil {
		return
	}
	deltaRps := int32(absDeltaRpsMinus1) + 1
	if sign {
		deltaRps = -deltaRps
	}

	ref := &sets[idx-(deltaIdxMinus1+1)]
	n := ref.NumDeltaPocs()
	usedByCurr := make([]bool, n+1)
	useDelta := make([]bool, n+1)
	for j := 0; j <= n; j++ {
		if usedByCurr[j], err = r.ReadFlag(); err != nil {
			return
		}
		useDelta[j] = true
		if !usedByCurr[j] {
			if useDelta[j], err = r.ReadFlag(); err != nil {
				return
			}
		}
	}

	// (7-61)
	numNeg := ref.NumNegativePics()
	for j := ref.NumPositivePics() - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc < 0 && useDelta[numNeg+j] {
			rps.DeltaPocS0 = append(rps.DeltaPocS0, dPoc)
			rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, usedByCurr[numNeg+j])
		}
	}
	if deltaRps < 0 && useDelta[n] {
		rps.DeltaPocS0 = append(rps.DeltaPocS0, deltaRps)
		rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, usedByCurr[n])
	}
	for j := 0; j < numNeg; j++ {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc < 0 && useDelta[j] {
			rps.DeltaPocS0 = append(rps.DeltaPocS0, dPoc)
			rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, usedByCurr[j])
		}
	}

	// (7-62)
	for j := numNeg - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc > 0 && useDelta[j] {
			rps.DeltaPocS1 = append(rps.DeltaPocS1, dPoc)
			rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, usedByCurr[j])
		}
	}
	if deltaRps > 0 && useDelta[n] {
		rps.DeltaPocS1 = append(rps.DeltaPocS1, deltaRps)
		rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, usedByCurr[n])
	}
	for j := 0; j < ref.NumPositivePics(); j++ {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc > 0 && useDelta[numNeg+j] {
			rps.DeltaPocS1 = append(rps.DeltaPocS1, dPoc)
			rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, usedByCurr[numNeg+j])
		}
	}

	if rps.NumDeltaPocs() > maxDpbSize {
		err = base.NewErrCorruptBitstream("st_ref_pic_set too large", nil)
	}
	return
}

// skipScalingListData scaling_list_data()，合并时不关心具体取值
//
// <ISO_IEC_23008-2_2013.pdf> <7.3.4>
func skipScalingListData(r *BitReader) error {
	for sizeId := 0; sizeId < 4; sizeId++ {
		step := 1
		if sizeId == 3 {
			step = 3
		}
		for matrixId := 0; matrixId < 6; matrixId += step {
			predModeFlag, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if !predModeFlag {
				// scaling_list_pred_matrix_id_delta
				if _, err = r.ReadUe(); err != nil {
					return err
				}
				continue
			}
			coefNum := 1 << (4 + (sizeId << 1))
			if coefNum > 64 {
				coefNum = 64
			}
			if sizeId > 1 {
				// scaling_list_dc_coef_minus8
				if _, err = r.ReadSe(); err != nil {
					return err
				}
			}
			for i := 0; i < coefNum; i++ {
				// scaling_list_delta_coef
				if _, err = r.ReadSe(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
