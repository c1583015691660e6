package node

import (
	"bytes"
	"time"

	"dschain/consensus"
	"dschain/crypto/multisig"
	"dschain/messenger"
	"dschain/network"
	"dschain/state"
	"dschain/types"
)

// verifyVCBlockCoSignature 校验VC block的第二轮聚合签名
// B2必须覆盖整个委员会，置1的个数必须等于BFT阈值
func (n *Node) verifyVCBlockCoSignature(vcblock *types.VCBlock) bool {
	comm := n.registry.Committee()

	b2 := vcblock.Cosigs.B2
	if comm.Size() != len(b2) {
		n.Logger.Error("mismatch between DS committee size and co-sig bitmap size",
			"committee", comm.Size(), "bitmap", len(b2))
		return false
	}

	// 聚合B2置1位置上的公钥
	keys := make([]types.PubKey, 0, len(b2))
	for i, member := range comm.Members {
		if b2[i] {
			keys = append(keys, member.PubKey)
		}
	}

	if len(keys) != consensus.NumForConsensus(len(b2)) {
		n.Logger.Error("cosig was not generated by enough nodes",
			"signed", len(keys), "required", consensus.NumForConsensus(len(b2)))
		return false
	}

	aggregatedKey, err := multisig.AggregatePubKeys(keys)
	if err != nil {
		n.Logger.Error("aggregated key generation failed", "err", err)
		return false
	}

	// CS2签的是 header ∥ CS1 ∥ B1
	message := vcblock.Header.Serialize()
	message = append(message, vcblock.Cosigs.CS1...)
	message = append(message, types.PackBitVector(vcblock.Cosigs.B1)...)

	if err := multisig.Verify(message, vcblock.Cosigs.CS2, aggregatedKey); err != nil {
		n.Logger.Error("cosig verification failed", "err", err)
		return false
	}

	return true
}

// verifyTimestamp 区块时间戳必须落在允许窗口里
func (n *Node) verifyTimestamp(timestamp int64, window time.Duration) bool {
	diff := time.Now().Unix() - timestamp
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Second > window {
		n.Logger.Error("vc block timestamp out of window",
			"timestamp", timestamp, "window", window)
		return false
	}
	return true
}

// ProcessVCBlock VCBLOCK信封的入口
// 验证通过后委员会里的faulty leader会被挪到尾部
func (n *Node) ProcessVCBlock(message []byte, from types.Peer) bool {
	payload, err := messenger.GetNodeVCBlock(message)
	if err != nil {
		n.Logger.Error("GetNodeVCBlock failed", "err", err)
		return false
	}
	vcblock := payload.VCBlock

	// DS block阶段的VC必须和DS block一起走另外的处理路径
	if vcblock.Header.ViewChangeState.IsDSBlockVCState() {
		n.Logger.Error("shard node shouldn't process vc block before ds block, "+
			"it should process it together with ds block",
			"cur_epoch", n.chain.CurrentEpochNum(),
			"vc_epoch", vcblock.Header.VCEpochNo)
		return false
	}

	if !n.processVCBlockCore(vcblock) {
		return false
	}

	if !n.cfg.LookupNodeMode && n.cfg.BroadcastTreebasedCluster {
		n.sendVCBlockToOtherShardNodes(message)
	}

	n.Logger.Info("I am a node and my view of leader is successfully changed.")
	return true
}

// processVCBlockCore 单个VC block的验证和应用
// 每一步失败都短路返回false
func (n *Node) processVCBlockCore(vcblock *types.VCBlock) bool {
	if vcblock.Header.VCEpochNo != n.chain.CurrentEpochNum() {
		n.Logger.Error("vc block epoch doesn't match current epoch",
			"vc_epoch", vcblock.Header.VCEpochNo,
			"cur_epoch", n.chain.CurrentEpochNum())
		return false
	}

	if !n.chain.IsLatest(vcblock.Header.VCDSEpochNo, vcblock.Header.VCEpochNo) {
		n.Logger.Error("vc block is not for the latest epoch")
		return false
	}

	// 重算区块hash和收到的对比
	if !bytes.Equal(vcblock.Hash(), vcblock.BlockHash) {
		n.Logger.Error("block hash in newly received vc block doesn't match",
			"calculated", vcblock.Hash(), "received", vcblock.BlockHash)
		return false
	}

	window := n.cfg.ConsensusObjectTimeout + n.cfg.ViewChangeTime +
		n.cfg.ViewChangePrecheckTime + n.cfg.ViewChangeExtraTime
	if !n.verifyTimestamp(vcblock.Header.Timestamp, window) {
		return false
	}

	// 委员会hash必须和本地视图一致
	committeeHash := messenger.GetDSCommitteeHash(n.registry.Committee())
	if !bytes.Equal(committeeHash, vcblock.Header.CommitteeHash) {
		n.Logger.Error("DS committee hash in newly received vc block doesn't match",
			"calculated", committeeHash, "received", vcblock.Header.CommitteeHash)
		return false
	}

	if !n.verifyVCBlockCoSignature(vcblock) {
		n.Logger.Error("vc block co-sig verification failed")
		return false
	}

	latestIndex := n.chain.LatestLinkIndex() + 1
	n.chain.AppendLink(latestIndex, vcblock.Header.VCDSEpochNo, state.VCKind, vcblock.BlockHash)

	bz, err := vcblock.Serialize()
	if err != nil {
		n.Logger.Error("serialize vc block failed", "err", err)
		return false
	}
	if err := n.blockStore.PutVCBlock(vcblock.BlockHash, bz); err != nil {
		n.Logger.Error("failed to store vc block", "err", err)
		return false
	}

	if err := n.registry.ReorderForVC(vcblock.Header.FaultyLeaders, n.selfKey, n.cfg.GuardMode); err != nil {
		// 委员会视图已经分叉，节点不能继续跑
		panic(err)
	}

	return true
}

// sendVCBlockToOtherShardNodes 树形转发给同分片的child cluster
func (n *Node) sendVCBlockToOtherShardNodes(message []byte) {
	clusterSize := n.cfg.NumForwardedBlockReceiversPerShard
	if clusterSize <= n.cfg.NumDSElection {
		n.Logger.Error("adjusting NUM_FORWARDED_BLOCK_RECEIVERS_PER_SHARD to be greater than NUM_DS_ELECTION")
		clusterSize = n.cfg.NumDSElection + 1
	}

	n.Logger.Info("primary cluster size used is (NUM_FORWARDED_BLOCK_RECEIVERS_PER_SHARD)",
		"cluster_size", clusterSize)

	n.mtx.Lock()
	peers := n.myShardPeers
	n.mtx.Unlock()

	network.TreeBasedBroadcast(n.transport, n.Logger, peers, message,
		clusterSize, n.cfg.NumOfTreebasedChildClusters)
}
