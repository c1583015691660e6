package node

import (
	"dschain/messenger"
	"dschain/types"
)

// ProcessDSBlockMessage shard节点收到DSBLOCK信封
// 上链、落盘、更新随机数种子，分片内的epoch推进在本core之外
func (n *Node) ProcessDSBlockMessage(message []byte, from types.Peer) bool {
	payload, err := messenger.GetNodeDSBlock(message)
	if err != nil {
		n.Logger.Error("GetNodeDSBlock failed", "err", err, "from", from)
		return false
	}
	block := payload.DSBlock

	n.Logger.Info("received ds block", "num", block.Header.BlockNum, "shard", payload.ShardID)

	if err := n.chain.AppendDS(block); err != nil {
		n.Logger.Error("failed to add received ds block to ds chain", "err", err)
	}

	bz, err := block.Serialize()
	if err != nil {
		n.Logger.Error("serialize ds block failed", "err", err)
		return false
	}
	if err := n.blockStore.PutDSBlock(block.Header.BlockNum, bz); err != nil {
		n.Logger.Error("persist ds block failed", "err", err)
		return false
	}

	n.chain.UpdateDSBlockRand()
	return true
}

// ProcessFinalBlockMessage shard节点收到FINALBLOCK信封
func (n *Node) ProcessFinalBlockMessage(message []byte, from types.Peer) bool {
	payload, err := messenger.GetNodeFinalBlock(message)
	if err != nil {
		n.Logger.Error("GetNodeFinalBlock failed", "err", err, "from", from)
		return false
	}
	block := payload.TxBlock

	n.Logger.Info("received final block",
		"num", block.Header.BlockNum,
		"ds_block_num", payload.DSBlockNum,
		"consensus_id", payload.ConsensusID)

	if err := n.chain.AppendTx(block); err != nil {
		n.Logger.Error("failed to add received final block to tx chain", "err", err)
	}
	n.chain.IncreaseEpochNum()

	bz, err := block.Serialize()
	if err != nil {
		n.Logger.Error("serialize tx block failed", "err", err)
		return false
	}
	if err := n.blockStore.PutTxBlock(block.Header.BlockNum, bz); err != nil {
		n.Logger.Error("persist tx block failed", "err", err)
		return false
	}
	if len(payload.StateDelta) > 0 {
		if err := n.blockStore.PutStateDelta(block.Header.BlockNum, payload.StateDelta); err != nil {
			n.Logger.Error("persist state delta failed", "err", err)
		}
	}

	n.chain.UpdateDSBlockRand()
	n.chain.UpdateTxBlockRand()
	return true
}
