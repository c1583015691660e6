package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// DSBlockHeader 宣布新的PoW winner和下一轮分片结构
type DSBlockHeader struct {
	BlockNum      uint64           `json:"block_num"`
	PrevHash      tmbytes.HexBytes `json:"prev_hash"`
	MinerPubKey   PubKey           `json:"miner_pub_key"`
	Nonce         uint64           `json:"nonce"`
	DSDifficulty  uint8            `json:"ds_difficulty"`
	Difficulty    uint8            `json:"difficulty"`
	Timestamp     int64            `json:"timestamp"`
	CommitteeHash tmbytes.HexBytes `json:"committee_hash"`
}

func (h *DSBlockHeader) Serialize() []byte {
	bz, err := tmjson.Marshal(h)
	if err != nil {
		panic(err)
	}
	return bz
}

type DSBlock struct {
	Header DSBlockHeader `json:"header"`
	Cosigs CoSignatures  `json:"cosigs"`
}

// Hash 区块头的sha256
func (b *DSBlock) Hash() tmbytes.HexBytes {
	return tmhash.Sum(b.Header.Serialize())
}

func (b *DSBlock) Serialize() ([]byte, error) {
	return tmjson.Marshal(b)
}

// SetCoSignatures 共识DONE后把共识对象里的签名挂到区块上
func (b *DSBlock) SetCoSignatures(cosigs CoSignatures) {
	b.Cosigs = cosigs
}

func (b *DSBlock) ValidateBasic() error {
	if b == nil {
		return errors.New("nil ds block")
	}
	if b.Header.MinerPubKey.IsEmpty() {
		return errors.New("ds block has no miner pubkey")
	}
	return nil
}

func (b *DSBlock) String() string {
	return fmt.Sprintf("DSBlock{num:%d miner:%v nonce:%d}",
		b.Header.BlockNum, b.Header.MinerPubKey, b.Header.Nonce)
}
