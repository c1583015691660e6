package directory

import (
	"strconv"

	"dschain/committee"
	"dschain/libs/hashutil"
	"dschain/messenger"
	"dschain/store"
	"dschain/types"
)

// storeDSBlockToStorage pending DS block上链并落盘
// 链上append失败只是告警，区块照样写进存储，缺口由外部补块机制处理
func (ds *DirectoryService) storeDSBlockToStorage() {
	ds.pendingDSBlockMtx.Lock()
	defer ds.pendingDSBlockMtx.Unlock()

	block := ds.pendingDSBlock
	ds.Logger.Info("storing DS block",
		"num", block.Header.BlockNum,
		"nonce", block.Header.Nonce,
		"ds_difficulty", block.Header.DSDifficulty,
		"difficulty", block.Header.Difficulty,
		"timestamp", block.Header.Timestamp)

	if err := ds.chain.AppendDS(block); err != nil {
		ds.Logger.Error("failed to add pending ds block to ds chain", "err", err)
	}

	bz, err := block.Serialize()
	if err != nil {
		ds.Logger.Error("serialize ds block failed", "err", err)
		return
	}
	if err := ds.blockStore.PutDSBlock(block.Header.BlockNum, bz); err != nil {
		ds.Logger.Error("persist ds block failed", "err", err)
	}

	ds.chain.SetLatestActiveDSBlockNum(block.Header.BlockNum)
	if err := ds.blockStore.PutMetadata(store.MetaLatestActiveDSBlockNum,
		[]byte(strconv.FormatUint(block.Header.BlockNum, 10))); err != nil {
		ds.Logger.Error("persist latest active ds block num failed", "err", err)
	}
}

// composeDSBlockMessage 按shard id组装DSBLOCK信封
func (ds *DirectoryService) composeDSBlockMessage(shardID uint32, winnerPeer types.Peer) ([]byte, error) {
	shards := ds.registry.Shards()

	ds.pendingDSBlockMtx.Lock()
	defer ds.pendingDSBlockMtx.Unlock()

	return messenger.SetNodeDSBlock(
		shardID, ds.pendingDSBlock, winnerPeer,
		shards, nil, nil, nil,
	)
}

// sendDSBlockToLookupNodes send cohort里的节点把DS block发给lookup集合
func (ds *DirectoryService) sendDSBlockToLookupNodes(winnerPeer types.Peer) {
	message, err := ds.composeDSBlockMessage(0, winnerPeer)
	if err != nil {
		ds.Logger.Error("SetNodeDSBlock failed", "err", err)
		return
	}

	ds.transport.SendBroadcast(ds.lookups, message)
	ds.Logger.Info("I am part of the subset of the DS committee that have sent the DSBlock to the lookup nodes")
}

// sendDSBlockToNewDSLeader 单独unicast给新leader
// 新leader还不在分片表里，multicast阶段覆盖不到它
func (ds *DirectoryService) sendDSBlockToNewDSLeader(winnerPeer types.Peer) {
	message, err := ds.composeDSBlockMessage(0, winnerPeer)
	if err != nil {
		ds.Logger.Error("SetNodeDSBlock failed", "err", err)
		return
	}

	ds.transport.SendUnicast(winnerPeer, message)
	ds.Logger.Info("I am part of the subset of the DS committee that have sent the DSBlock to the new DS leader")
}

// sendDSBlockToShardNodes 把DS block广播到自己cluster负责的分片区间
func (ds *DirectoryService) sendDSBlockToShardNodes(winnerPeer types.Peer, shardsLo, shardsHi int) {
	shards := ds.registry.Shards()

	for i := shardsLo; i <= shardsHi && i < len(shards); i++ {
		shard := shards[i]
		if len(shard) == 0 {
			continue
		}

		// shard id从分片leader的公钥反查
		shardID, ok := ds.registry.ShardIDOf(shard[0].PubKey)
		if !ok {
			ds.Logger.Error("shard leader not in pubkey to shard id map", "shard", i)
			continue
		}

		message, err := ds.composeDSBlockMessage(shardID, winnerPeer)
		if err != nil {
			ds.Logger.Error("SetNodeDSBlock failed", "err", err)
			return
		}

		if ds.cfg.BroadcastGossipMode {
			// 选分片里前N个节点作为rumor接收者
			n := ds.cfg.NumDSBlockGossipReceiversPerShard
			if len(shard) < n {
				n = len(shard)
			}
			receivers := make([]types.Peer, 0, n)
			for _, member := range shard[:n] {
				receivers = append(receivers, member.Peer)
			}
			ds.transport.SendRumorToForeign(receivers, message)
		} else {
			ds.transport.SendBroadcast(shard.Peers(), message)
		}
	}
}

// ProcessDSBlockConsensusWhenDone DS block共识DONE后的全部收尾
// 存储、轮换、三路分发，然后把epoch状态机推进到microblock阶段
func (ds *DirectoryService) ProcessDSBlockConsensusWhenDone() {
	if ds.cfg.LookupNodeMode {
		ds.Logger.Error("ProcessDSBlockConsensusWhenDone not expected to be called from lookup node")
		return
	}

	ds.Logger.Info("DS block consensus is DONE!!!", "epoch", ds.chain.CurrentEpochNum())

	{
		ds.pendingDSBlockMtx.Lock()
		if ds.pendingDSBlock == nil {
			ds.pendingDSBlockMtx.Unlock()
			panic("pending ds block is nil at consensus DONE")
		}

		// 把共识对象里的两轮签名挂到区块上
		ds.pendingDSBlock.SetCoSignatures(ds.consensusObject.CoSignatures())

		if ds.pendingDSBlock.Header.BlockNum > ds.chain.TailDSNum()+1 {
			// 缺口只告警，补块走外部恢复路径
			ds.Logger.Error("we are missing some blocks. What to do here?",
				"pending", ds.pendingDSBlock.Header.BlockNum, "tail", ds.chain.TailDSNum())
		}
		ds.pendingDSBlockMtx.Unlock()
	}

	{
		ds.coinbaseMtx.Lock()
		ds.coinbaseRewardees = make(map[string]uint64)
		ds.coinbaseMtx.Unlock()
	}

	ds.storeDSBlockToStorage()
	ds.chain.UpdateDSBlockRand()
	ds.incMetric("ds_block_committed")

	lastDSBlock := ds.chain.TailDS()

	winnerPeer, ok := ds.registry.PoWConn(lastDSBlock.Header.MinerPubKey)
	if !ok {
		ds.Logger.Error("winner pubkey has no pow connection",
			"miner", lastDSBlock.Header.MinerPubKey)
	}

	// backup在共识期间shadow构建的分片结构现在换成live
	if ds.Mode() == committee.BackupDS {
		ds.registry.SwapShardTable()
	}

	// send cohort - 窗口内的节点负责lookup发送和新leader单播
	myID := ds.ConsensusMyID()
	cohortLo := uint16(ds.cfg.CommSize / 4)
	cohortHi := cohortLo + uint16(ds.cfg.TxSharingClusterSize)

	if cohortLo < myID && myID < cohortHi {
		ds.sendDSBlockToLookupNodes(winnerPeer)
	}
	if cohortLo < myID && myID < cohortHi {
		ds.sendDSBlockToNewDSLeader(winnerPeer)
	}

	ds.Logger.Info("new DS block created",
		"nonce", lastDSBlock.Header.Nonce,
		"rand", ds.chain.DSBlockRand(),
		"new_member", winnerPeer)

	mc := committee.PartitionShards(
		ds.registry.Size(), ds.registry.ShardCount(),
		int(myID), ds.cfg.DSMulticastClusterSize)

	// cluster太多目标分片太少时跳过发送
	if mc.ShouldSend(ds.registry.ShardCount()) {
		ds.sendDSBlockToShardNodes(winnerPeer, mc.ShardsLo, mc.ShardsHi)
	}

	ds.updateMyDSModeAndConsensusID()

	ds.registry.RotateForNewDSBlock(types.PairOfNode{
		PubKey: lastDSBlock.Header.MinerPubKey,
		Peer:   winnerPeer,
	})

	leader := ds.registry.MemberAt(int(ds.ConsensusLeaderID()))
	if leader.PubKey.Equals(ds.selfKey) {
		ds.Logger.Info("new leader is me", "index", ds.ConsensusLeaderID(), "peer", ds.selfPeer)
	} else {
		ds.Logger.Info("new leader", "index", ds.ConsensusLeaderID(), "peer", leader.Peer)
	}

	ds.startFirstTxEpoch()
}

// updateMyDSModeAndConsensusID rotation之前根据pre-rotation位置推导下一轮身份
func (ds *DirectoryService) updateMyDSModeAndConsensusID() {
	var lastBlockHash16 uint16
	if ds.chain.CurrentEpochNum() > 1 {
		tail := ds.chain.TailTx()
		if tail != nil {
			lastBlockHash16 = hashutil.Hash16(tail.Header.Serialize())
		}
	}

	mode, myID, leaderID := ds.registry.UpdateSelfModeAndID(
		ds.ConsensusMyID(), ds.selfKey, lastBlockHash16)

	ds.stateMtx.Lock()
	ds.mode = mode
	if mode != committee.Idle {
		ds.consensusMyID = myID
		ds.consensusLeaderID = leaderID
	}
	ds.stateMtx.Unlock()

	switch mode {
	case committee.Idle:
		ds.Logger.Info("I am the oldest backup DS -> I am now just a shard node")
	case committee.PrimaryDS:
		ds.Logger.Info("I am now leader DS", "my_id", myID, "leader_id", leaderID)
	default:
		ds.Logger.Info("I am now backup DS", "my_id", myID, "leader_id", leaderID)
	}
}

// startFirstTxEpoch DS epoch的第一个tx epoch
// DS成员进入microblock收集，被驱逐的节点转成shard节点
func (ds *DirectoryService) startFirstTxEpoch() {
	ds.Logger.Info("start first tx epoch", "mode", ds.Mode())

	ds.registry.ClearPoWConns()
	ds.stateMtx.Lock()
	ds.viewChangeCounter = 0
	ds.stateMtx.Unlock()

	{
		ds.microBlocksMtx.Lock()
		ds.microBlocks = nil
		ds.localMicroBlock = nil
		ds.microBlocksMtx.Unlock()
	}
	{
		ds.stateDeltaMtx.Lock()
		ds.stateDeltaFromShards = nil
		ds.stateDeltaMtx.Unlock()
	}

	if ds.Mode() != committee.Idle {
		// DS委员会自己就是一个分片
		comm := ds.registry.Committee()
		for idx, member := range comm.Members {
			if member.Peer.Equal(ds.selfPeer) || member.PubKey.Equals(ds.selfKey) {
				ds.Logger.Debug("my position in the DS sharded committee", "index", idx)
			}
		}

		if comm.Front().PubKey.Equals(ds.selfKey) {
			ds.Logger.Info("I am leader of the DS sharded committee")
		} else {
			ds.Logger.Info("I am backup member of the DS sharded committee")
		}

		ds.node.SetShardID(uint32(ds.registry.ShardCount())) // sentinel - 我是DS
		ds.node.SetShardMembers(comm.Peers())
		ds.node.CommitTxnPacketBuffer()

		if ds.cfg.TestNetMode {
			ds.Logger.Info("updating shard whitelist")
		}

		ds.SetState(MicroblockSubmission)
		ds.microBlocksMtx.Lock()
		ds.dsStartedMBConsensus = false
		ds.microBlocksMtx.Unlock()

		if ds.cfg.BroadcastGossipMode {
			ds.transport.InitRumorManager(comm.Peers())
		}

		// microblock收集的级联超时
		go ds.scheduleDSMicroBlockConsensus()
	} else {
		// 最老的DS成员现在是shard节点了，要在新分片表里找到自己
		shards := ds.registry.Shards()
		shardID, found := shards.FindPubKey(ds.selfKey)
		if !found {
			ds.Logger.Error("WARNING: oldest DS node not in any of the new shards!")
			return
		}
		ds.node.SetShardID(shardID)
		ds.node.SetShardMembers(shards[shardID].Peers())

		if !ds.node.LoadShardingStructure() {
			return
		}
		ds.node.LoadTxnSharingInfo()

		if ds.cfg.BroadcastGossipMode {
			ds.transport.InitRumorManager(shards[shardID].Peers())
		}

		ds.node.StartFirstTxEpoch()
	}
}

// scheduleDSMicroBlockConsensus T1超时后跑DS microblock共识
// 接着套T2，T2也超时就带着proceed-without-all-microblocks标志跑final block共识
func (ds *DirectoryService) scheduleDSMicroBlockConsensus() {
	if waitSignal(ds.cvScheduleDSMBConsensus, ds.cfg.MicroblockTimeout) {
		return
	}
	if ds.getSyncType() != NoSync {
		return
	}

	ds.Logger.Error("timeout: didn't receive all microblocks. Proceeds without it")

	go func() {
		ds.microBlocksMtx.Lock()
		ds.dsStartedMBConsensus = true
		ds.microBlocksMtx.Unlock()
		ds.node.RunConsensusOnMicroBlock()
	}()

	if waitSignal(ds.cvScheduleFinalBlockCons, ds.cfg.DSMicroblockConsensusObjectTimeout) {
		return
	}
	if ds.getSyncType() != NoSync {
		return
	}

	ds.Logger.Error("timeout: didn't finish DS microblock. Proceeds without it")
	if ds.runConsensusOnFinalBlock != nil {
		ds.runConsensusOnFinalBlock(true)
	}
}
