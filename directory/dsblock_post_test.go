package directory

import (
	"testing"
	"time"

	"dschain/committee"
	"dschain/store"
	"dschain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DS block DONE后的完整收尾 - 存储、轮换、分发、进入microblock阶段
func TestProcessDSBlockConsensusWhenDone(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)
	f.pendingDSBlock(1)
	randBefore := f.chain.DSBlockRand()

	f.ds.ProcessDSBlockConsensusWhenDone()

	// 链尾和落盘
	require.EqualValues(t, 1, f.chain.TailDSNum())
	bz, err := f.bstore.GetDSBlock(1)
	require.NoError(t, err)
	assert.NotEmpty(t, bz)
	meta, err := f.bstore.GetMetadata(store.MetaLatestActiveDSBlockNum)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), meta)
	assert.EqualValues(t, 1, f.chain.LatestActiveDSBlockNum())

	// 随机数种子前滚
	assert.NotEqual(t, randBefore, f.chain.DSBlockRand())

	// 轮换后winner在头部，大小不变
	comm := f.registry.Committee()
	require.Equal(t, 4, comm.Size())
	assert.True(t, comm.Front().PubKey.Equals(f.winner.PubKey))
	assert.Equal(t, -1, comm.Find(f.members[3]))

	// pre-rotation下标2的成员继续留任，my_id+1
	assert.EqualValues(t, 3, f.ds.ConsensusMyID())
	assert.NotEqual(t, committee.Idle, f.ds.Mode())
	// leader下标必须落在委员会范围里
	assert.Less(t, int(f.ds.ConsensusLeaderID()), comm.Size())

	// 状态机推进到microblock收集
	assert.Equal(t, MicroblockSubmission, f.ds.State())
	assert.True(t, f.node.Called("CommitTxnPacketBuffer"))

	// send cohort - CommSize=4: lo=1, hi=3, my_id=2在窗口内
	// lookup广播1次 + winner单播1次 + 分片0广播1次
	assert.Len(t, f.transport.SentOfKind("unicast"), 1)
	unicast := f.transport.SentOfKind("unicast")[0]
	assert.Equal(t, f.winner.Peer, unicast.Peers[0])
	broadcasts := f.transport.SentOfKind("broadcast")
	require.Len(t, broadcasts, 2)
	assert.Equal(t, f.lookups, broadcasts[0].Peers)
}

// 窗口外的节点不发lookup、不单播winner
func TestDSBlockSendCohortStrictWindow(t *testing.T) {
	// my_id=1 == lo，strict窗口之外
	f := newFixture(t, 1, committee.BackupDS)
	f.pendingDSBlock(1)

	f.ds.ProcessDSBlockConsensusWhenDone()

	assert.Empty(t, f.transport.SentOfKind("unicast"))
	// multicast的分片广播照常
	assert.NotEmpty(t, f.transport.SentOfKind("broadcast"))
}

// 最老的backup出委员会转shard节点
func TestDSBlockOldestBackupBecomesIdle(t *testing.T) {
	f := newFixture(t, 3, committee.BackupDS)
	f.pendingDSBlock(1)

	// 把自己放进1号分片，让IDLE路径能找到自己
	self := f.members[3]
	shards := f.registry.Shards()
	shards[1] = append(shards[1], types.ShardMember{PubKey: self.PubKey, Peer: self.Peer})
	pkMap := map[string]uint32{
		shards[0][0].PubKey.MapKey(): 0,
		shards[1][0].PubKey.MapKey(): 1,
	}
	f.registry.SetShardTable(shards, pkMap, nil, nil, nil, nil)
	f.registry.SetTempShardTable(shards, pkMap, nil, nil, nil, nil)

	f.ds.ProcessDSBlockConsensusWhenDone()

	assert.Equal(t, committee.Idle, f.ds.Mode())
	assert.True(t, f.node.Called("SetShardID"))
	assert.EqualValues(t, 1, f.node.ShardID())
	assert.True(t, f.node.Called("LoadShardingStructure"))
	assert.True(t, f.node.Called("LoadTxnSharingInfo"))
	assert.True(t, f.node.Called("StartFirstTxEpoch"))
}

// 被驱逐的节点不在新分片表里 - 告警返回，不能crash
func TestDSBlockOldestBackupNotInShards(t *testing.T) {
	f := newFixture(t, 3, committee.BackupDS)
	f.pendingDSBlock(1)

	f.ds.ProcessDSBlockConsensusWhenDone()

	assert.Equal(t, committee.Idle, f.ds.Mode())
	assert.False(t, f.node.Called("StartFirstTxEpoch"))
	assert.False(t, f.node.Called("LoadShardingStructure"))
}

// backup的shadow分片表在DONE时换成live
func TestDSBlockBackupSwapsShardTable(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)
	f.pendingDSBlock(1)

	// shadow里只有1个分片
	leader := randPair(29000)
	tmpShards := types.DequeOfShard{
		{{PubKey: leader.PubKey, Peer: leader.Peer, Reputation: 1}},
	}
	f.registry.SetTempShardTable(tmpShards,
		map[string]uint32{leader.PubKey.MapKey(): 0}, nil, nil, nil, nil)

	f.ds.ProcessDSBlockConsensusWhenDone()

	// swap发生了 - live换成了shadow里的1个分片
	assert.Equal(t, 1, f.registry.ShardCount())
}

// microblock收集超时后的级联 - 先DS microblock共识，再final block共识
func TestDSBlockTimeoutCascade(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)
	f.pendingDSBlock(1)

	proceedCh := make(chan bool, 1)
	SetFinalBlockConsensusHooks(func(withoutMB bool) {
		proceedCh <- withoutMB
	}, nil)(f.ds)

	f.ds.ProcessDSBlockConsensusWhenDone()

	// T1超时 → DS microblock共识
	waitUntil(t, func() bool { return f.node.Called("RunConsensusOnMicroBlock") },
		"ds microblock consensus not triggered")

	// T2超时 → 带proceed-without-all-microblocks标志的final block共识
	select {
	case withoutMB := <-proceedCh:
		assert.True(t, withoutMB)
	case <-time.After(2 * time.Second):
		t.Fatal("final block consensus not triggered")
	}
}
