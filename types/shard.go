package types

// ShardMember 一个分片成员 - (公钥, 地址, 信誉值)
type ShardMember struct {
	PubKey     PubKey `json:"pub_key"`
	Peer       Peer   `json:"peer"`
	Reputation uint32 `json:"reputation"`
}

// Shard 有序的分片成员列表，0号位是分片leader
type Shard []ShardMember

// Peers 分片内所有成员的地址
func (s Shard) Peers() []Peer {
	peers := make([]Peer, 0, len(s))
	for _, m := range s {
		if !m.Peer.IsZero() {
			peers = append(peers, m.Peer)
		}
	}
	return peers
}

// DequeOfShard 当前DS epoch的全部分片
type DequeOfShard []Shard

// FindPubKey 在所有分片里查找公钥，返回(shard index, 是否找到)
func (ds DequeOfShard) FindPubKey(pubKey PubKey) (uint32, bool) {
	for i, shard := range ds {
		for _, member := range shard {
			if member.PubKey.Equals(pubKey) {
				return uint32(i), true
			}
		}
	}
	return 0, false
}
