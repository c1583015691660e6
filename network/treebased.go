package network

import (
	"github.com/tendermint/tendermint/libs/log"

	"dschain/types"
)

// TreeBasedBroadcast 树形转发 - 把自己分片里前面的节点切成child cluster逐个广播
// 收到区块的非lookup非DS节点用它向同分片扩散
func TreeBasedBroadcast(
	transport Transport,
	logger log.Logger,
	peers []types.Peer,
	message []byte,
	clusterSize int,
	numChildClusters int,
) {
	if clusterSize <= 0 || numChildClusters <= 0 {
		logger.Error("invalid tree based cluster parameters",
			"cluster_size", clusterSize, "child_clusters", numChildClusters)
		return
	}

	total := clusterSize * numChildClusters
	if total > len(peers) {
		total = len(peers)
	}

	for lo := 0; lo < total; lo += clusterSize {
		hi := lo + clusterSize
		if hi > total {
			hi = total
		}
		transport.SendBroadcast(peers[lo:hi], message)
	}
}
