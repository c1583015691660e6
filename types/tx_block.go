package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// TxBlockHeader 一个epoch的final block区块头
type TxBlockHeader struct {
	BlockNum  uint64           `json:"block_num"`
	Type      uint8            `json:"type"`
	Version   uint32           `json:"version"`
	NumTxs    uint32           `json:"num_txs"`
	Rewards   uint64           `json:"rewards"`
	GasLimit  uint64           `json:"gas_limit"`
	GasUsed   uint64           `json:"gas_used"`
	Timestamp int64            `json:"timestamp"`
	StateRoot tmbytes.HexBytes `json:"state_root"`
	TxRoot    tmbytes.HexBytes `json:"tx_root"`
	PrevHash  tmbytes.HexBytes `json:"prev_hash"`
}

func (h *TxBlockHeader) Serialize() []byte {
	bz, err := tmjson.Marshal(h)
	if err != nil {
		panic(err)
	}
	return bz
}

// MicroBlockInfo final block引用的分片micro block
type MicroBlockInfo struct {
	ShardID    uint32           `json:"shard_id"`
	TxRootHash tmbytes.HexBytes `json:"tx_root_hash"`
}

// TxBlock final block - 一个epoch的规范交易区块
type TxBlock struct {
	Header          TxBlockHeader    `json:"header"`
	Cosigs          CoSignatures     `json:"cosigs"`
	MicroBlockInfos []MicroBlockInfo `json:"micro_block_infos"`
}

func (b *TxBlock) Hash() tmbytes.HexBytes {
	return tmhash.Sum(b.Header.Serialize())
}

func (b *TxBlock) Serialize() ([]byte, error) {
	return tmjson.Marshal(b)
}

func (b *TxBlock) SetCoSignatures(cosigs CoSignatures) {
	b.Cosigs = cosigs
}

func (b *TxBlock) ValidateBasic() error {
	if b == nil {
		return errors.New("nil tx block")
	}
	return nil
}

func (b *TxBlock) String() string {
	return fmt.Sprintf("TxBlock{num:%d txs:%d rewards:%d}",
		b.Header.BlockNum, b.Header.NumTxs, b.Header.Rewards)
}
