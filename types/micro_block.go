package types

import (
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// MicroBlock 分片在一个epoch内产出的部分区块
// 这里只保留final block聚合需要的信息
type MicroBlock struct {
	ShardID    uint32           `json:"shard_id"`
	EpochNum   uint64           `json:"epoch_num"`
	TxRootHash tmbytes.HexBytes `json:"tx_root_hash"`
	NumTxs     uint32           `json:"num_txs"`
}

func (mb *MicroBlock) Info() MicroBlockInfo {
	return MicroBlockInfo{ShardID: mb.ShardID, TxRootHash: mb.TxRootHash}
}
