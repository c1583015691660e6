package hashutil

import (
	"encoding/binary"

	"github.com/tendermint/tendermint/crypto/tmhash"
)

// Sum sha256
func Sum(bz []byte) []byte {
	return tmhash.Sum(bz)
}

// Hash16 取序列化hash的低16位
// DS委员会rotation后用它从最新的tx block推导leader下标
func Hash16(bz []byte) uint16 {
	h := tmhash.Sum(bz)
	return binary.BigEndian.Uint16(h[len(h)-2:])
}

// UpdateRand 随机数种子链 - H(prev ∥ newBlockHash)
// 每提交一个DS block更新ds_block_rand，每提交一个final block更新tx_block_rand
func UpdateRand(prev []byte, newBlockHash []byte) []byte {
	buf := make([]byte, 0, len(prev)+len(newBlockHash))
	buf = append(buf, prev...)
	buf = append(buf, newBlockHash...)
	return tmhash.Sum(buf)
}
