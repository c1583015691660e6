package types

import (
	"encoding/binary"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// CoSignatures 两轮聚合schnorr签名
// Bi是委员会上的bitmap，标记哪些成员参与了CSi
type CoSignatures struct {
	CS1 tmbytes.HexBytes `json:"cs1"`
	B1  []bool           `json:"b1"`
	CS2 tmbytes.HexBytes `json:"cs2"`
	B2  []bool           `json:"b2"`
}

func (cs CoSignatures) IsEmpty() bool {
	return len(cs.CS1) == 0 && len(cs.CS2) == 0
}

// CountTrue bitmap中置1的个数
func CountTrue(bits []bool) int {
	count := 0
	for _, b := range bits {
		if b {
			count++
		}
	}
	return count
}

// PackBitVector 把bitmap编码成字节流 - 2字节大端长度 + MSB-first的位图
// cosig验证时header∥CS1∥B1里的B1用这个编码
func PackBitVector(bits []bool) []byte {
	dst := make([]byte, 2+(len(bits)+7)/8)
	binary.BigEndian.PutUint16(dst, uint16(len(bits)))
	for i, b := range bits {
		if b {
			dst[2+i/8] |= 1 << uint(7-i%8)
		}
	}
	return dst
}
