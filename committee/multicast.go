package committee

// MulticastConfig 一个DS节点在多播分组里要服务的分片区间
type MulticastConfig struct {
	Cluster  int
	ShardsLo int
	ShardsHi int
}

// PartitionShards 把DS委员会切成不相交的sender cluster，每个cluster负责一段分片
// 纯函数，不碰registry状态
func PartitionShards(committeeSize, numShards, myID, clusterSize int) MulticastConfig {
	numClusters := committeeSize / clusterSize
	if committeeSize%clusterSize > 0 {
		numClusters++
	}

	shardsPerCluster := numShards / numClusters
	if numShards%numClusters > 0 {
		shardsPerCluster++
	}

	myCluster := myID / clusterSize
	lo := myCluster * shardsPerCluster
	hi := lo + shardsPerCluster - 1
	if hi >= numShards {
		hi = numShards - 1
	}

	return MulticastConfig{Cluster: myCluster, ShardsLo: lo, ShardsHi: hi}
}

// ShouldSend cluster太靠后、没有分片可发时跳过send步骤
func (mc MulticastConfig) ShouldSend(numShards int) bool {
	return mc.Cluster+1 <= numShards
}
