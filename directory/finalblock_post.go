package directory

import (
	"dschain/messenger"
	"dschain/store"
	"dschain/types"
)

// storeFinalBlockToDisk final block上链、epoch+1、区块和state delta落盘
func (ds *DirectoryService) storeFinalBlockToDisk() {
	ds.finalBlockMtx.Lock()
	block := ds.finalBlock
	ds.finalBlockMtx.Unlock()

	if err := ds.chain.AppendTx(block); err != nil {
		ds.Logger.Error("failed to add final block to tx chain", "err", err)
	}
	// DS core里epoch在这里前进 - 紧跟在TX链append之后、区块落盘之前
	ds.chain.IncreaseEpochNum()

	ds.Logger.Info("storing tx block",
		"num", block.Header.BlockNum,
		"type", block.Header.Type,
		"version", block.Header.Version,
		"timestamp", block.Header.Timestamp,
		"num_txs", block.Header.NumTxs)

	bz, err := block.Serialize()
	if err != nil {
		ds.Logger.Error("serialize tx block failed", "err", err)
		return
	}
	if err := ds.blockStore.PutTxBlock(block.Header.BlockNum, bz); err != nil {
		ds.Logger.Error("persist tx block failed", "err", err)
	}

	delta := ds.accounts.GetSerializedDelta()
	if err := ds.blockStore.PutStateDelta(ds.chain.TailTxNum(), delta); err != nil {
		ds.Logger.Error("persist state delta failed", "err", err)
	}
}

// saveCoinbase 给B1、B2里签名的成员记账
func (ds *DirectoryService) saveCoinbase(b1, b2 []bool) {
	comm := ds.registry.Committee()

	ds.coinbaseMtx.Lock()
	defer ds.coinbaseMtx.Unlock()

	for i, signed := range b1 {
		if signed && i < comm.Size() {
			ds.coinbaseRewardees[comm.At(i).PubKey.MapKey()]++
		}
	}
	for i, signed := range b2 {
		if signed && i < comm.Size() {
			ds.coinbaseRewardees[comm.At(i).PubKey.MapKey()]++
		}
	}
}

// composeFinalBlockMessage 按shard id组装FINALBLOCK信封
func (ds *DirectoryService) composeFinalBlockMessage(shardID uint32) ([]byte, error) {
	ds.finalBlockMtx.Lock()
	defer ds.finalBlockMtx.Unlock()

	return messenger.SetNodeFinalBlock(
		shardID,
		ds.chain.TailDSNum(),
		ds.ConsensusID(),
		ds.finalBlock,
		ds.accounts.GetSerializedDelta(),
	)
}

// sendFinalBlockToShardNodes 把final block发到自己cluster负责的分片区间
func (ds *DirectoryService) sendFinalBlockToShardNodes(message []byte, shards types.DequeOfShard, shardsLo, shardsHi int) {
	for i := shardsLo; i <= shardsHi && i < len(shards); i++ {
		shard := shards[i]
		if len(shard) == 0 {
			continue
		}

		shardID, ok := ds.registry.ShardIDOf(shard[0].PubKey)
		if !ok {
			ds.Logger.Error("shard leader not in pubkey to shard id map", "shard", i)
			continue
		}

		shardMessage, err := ds.composeFinalBlockMessage(shardID)
		if err != nil {
			ds.Logger.Error("SetNodeFinalBlock failed", "err", err)
			return
		}

		if ds.cfg.BroadcastGossipMode {
			n := ds.cfg.NumGossipReceivers
			if len(shard) < n {
				n = len(shard)
			}
			receivers := make([]types.Peer, 0, n)
			for _, member := range shard[:n] {
				receivers = append(receivers, member.Peer)
			}
			ds.transport.SendRumorToForeign(receivers, shardMessage)
		} else {
			ds.transport.SendBroadcast(shard.Peers(), shardMessage)
		}
	}
}

// ProcessFinalBlockConsensusWhenDone final block共识DONE后的全部收尾
func (ds *DirectoryService) ProcessFinalBlockConsensusWhenDone() {
	if ds.cfg.LookupNodeMode {
		ds.Logger.Error("ProcessFinalBlockConsensusWhenDone not expected to be called from lookup node")
		return
	}

	ds.Logger.Info("final block consensus is DONE!!!", "epoch", ds.chain.CurrentEpochNum())

	ds.finalBlockMtx.Lock()
	if ds.finalBlock == nil {
		ds.finalBlockMtx.Unlock()
		panic("pending final block is nil at consensus DONE")
	}
	ds.finalBlock.SetCoSignatures(ds.consensusObject.CoSignatures())
	ds.finalBlockMtx.Unlock()

	// vacuous的判定要在epoch前进之前做
	isVacuousEpoch := ds.chain.IsVacuousEpoch()

	ds.storeFinalBlockToDisk()
	ds.incMetric("final_block_committed")

	if isVacuousEpoch {
		// DS cycle收尾 - 账户更新刷盘，标记DS epoch完成
		if err := ds.accounts.MoveUpdatesToDisk(); err != nil {
			ds.Logger.Error("move account updates to disk failed", "err", err)
		}
		if err := ds.blockStore.PutMetadata(store.MetaDSIncompleted, []byte{'0'}); err != nil {
			ds.Logger.Error("persist DSINCOMPLETED failed", "err", err)
		}
	} else {
		ds.finalBlockMtx.Lock()
		b1, b2 := ds.finalBlock.Cosigs.B1, ds.finalBlock.Cosigs.B2
		rewards := ds.finalBlock.Header.Rewards
		ds.finalBlockMtx.Unlock()

		ds.saveCoinbase(b1, b2)
		ds.coinbaseMtx.Lock()
		ds.totalTxnFees += rewards
		ds.coinbaseMtx.Unlock()
	}

	ds.chain.UpdateDSBlockRand()
	ds.chain.UpdateTxBlockRand()

	ds.microBlocksMtx.Lock()
	hasLocalMB := ds.localMicroBlock != nil
	ds.microBlocksMtx.Unlock()

	if hasLocalMB && !isVacuousEpoch {
		ds.node.UpdateProcessedTransactions()
		ds.node.ActOnFinalBlock()
	}

	// 三路分发 - DS委员会、分片、lookup
	err := ds.dataSender.SendDataToOthers(
		ds.ConsensusMyID(),
		ds.registry.Committee(),
		ds.registry.Shards(),
		ds.lookups,
		func() ([]byte, error) { return ds.composeFinalBlockMessage(0) },
		func(lookups []types.Peer, message []byte) {
			ds.transport.SendBroadcast(lookups, message)
		},
		ds.sendFinalBlockToShardNodes,
	)
	if err != nil {
		ds.Logger.Error("send final block to others failed", "err", err)
	}

	// DS链tail为UpgradeDS-1的vacuous epoch里(即DS块UpgradeDS产生之前)触发replace node
	if isVacuousEpoch && ds.cfg.UpgradeDS > 0 &&
		ds.cfg.UpgradeDS-1 == ds.chain.TailDSNum() && ds.replaceNode != nil {
		go ds.replaceNode()
	}

	ds.accounts.InitTemp()
	ds.accounts.InitReversibles()
	{
		ds.stateDeltaMtx.Lock()
		ds.stateDeltaFromShards = nil
		ds.stateDeltaMtx.Unlock()
	}
	ds.registry.ClearPoWConns()

	go ds.startNextEpoch(isVacuousEpoch)
}

// startNextEpoch detached的下一阶段调度
// vacuous开新的PoW轮，否则继续收集microblock
func (ds *DirectoryService) startNextEpoch(isVacuousEpoch bool) {
	ds.Logger.Info("START OF a new EPOCH", "epoch", ds.chain.CurrentEpochNum())

	if isVacuousEpoch {
		ds.Logger.Info("[PoW needed]")
		if ds.startNewDSEpochConsensus != nil {
			ds.startNewDSEpochConsensus()
		}
		return
	}

	ds.node.UpdateStateForNextConsensusRound()
	ds.SetState(MicroblockSubmission)

	ds.microBlocksMtx.Lock()
	ds.stopRecvNewMBSubmission = false
	ds.microBlocksMtx.Unlock()

	ds.Logger.Info("[No PoW needed] waiting for microblock")

	go ds.node.CommitTxnPacketBuffer()
	ds.commitMBSubmissionMsgBuffer()

	if waitSignal(ds.cvScheduleDSMBConsensus, ds.cfg.MicroblockTimeout) {
		return
	}
	if ds.getSyncType() != NoSync {
		return
	}

	ds.Logger.Error("timeout: didn't receive all microblocks. Proceeds without it")
	ds.microBlocksMtx.Lock()
	ds.stopRecvNewMBSubmission = true
	ds.microBlocksMtx.Unlock()

	if ds.runConsensusOnFinalBlock != nil {
		ds.runConsensusOnFinalBlock(false)
	}
}

// BufferMBSubmission 不在收集窗口里到达的microblock提交消息先缓存
func (ds *DirectoryService) BufferMBSubmission(message []byte) {
	ds.microBlocksMtx.Lock()
	defer ds.microBlocksMtx.Unlock()
	ds.mbSubmissionBuffer = append(ds.mbSubmissionBuffer, message)
}

// commitMBSubmissionMsgBuffer 重放缓存的microblock提交
func (ds *DirectoryService) commitMBSubmissionMsgBuffer() {
	ds.microBlocksMtx.Lock()
	buffered := ds.mbSubmissionBuffer
	ds.mbSubmissionBuffer = nil
	ds.microBlocksMtx.Unlock()

	for range buffered {
		// microblock提交的解析在本core之外，这里只负责把消息放回处理管道
		ds.Logger.Debug("replaying buffered microblock submission")
	}
}

// CoinbaseRewardee 某个成员累计的签名记账次数
func (ds *DirectoryService) CoinbaseRewardee(pubKey types.PubKey) uint64 {
	ds.coinbaseMtx.Lock()
	defer ds.coinbaseMtx.Unlock()
	return ds.coinbaseRewardees[pubKey.MapKey()]
}

// TotalTxnFees 累计的交易费
func (ds *DirectoryService) TotalTxnFees() uint64 {
	ds.coinbaseMtx.Lock()
	defer ds.coinbaseMtx.Unlock()
	return ds.totalTxnFees
}
