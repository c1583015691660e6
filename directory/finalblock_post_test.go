package directory

import (
	"testing"

	"dschain/committee"
	"dschain/store"
	"dschain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// final block DONE - 上链、epoch+1、落盘、coinbase记账、进入下一轮microblock收集
func TestProcessFinalBlockConsensusWhenDone(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)
	block := f.pendingFinalBlock(1)

	// 共识对象给出的签名bitmap - 成员0、1、2参与了两轮
	f.consensus.Cosigs = types.CoSignatures{
		CS1: []byte("cs1"), B1: []bool{true, true, true, false},
		CS2: []byte("cs2"), B2: []bool{true, true, true, false},
	}

	epochBefore := f.chain.CurrentEpochNum()
	f.ds.ProcessFinalBlockConsensusWhenDone()

	// epoch恰好+1
	assert.Equal(t, epochBefore+1, f.chain.CurrentEpochNum())
	assert.EqualValues(t, 1, f.chain.TailTxNum())

	// 区块和state delta落盘
	bz, err := f.bstore.GetTxBlock(1)
	require.NoError(t, err)
	assert.NotEmpty(t, bz)

	// 签名挂上了区块
	assert.False(t, block.Cosigs.IsEmpty())

	// 非vacuous - B1/B2的签名者各记一次账
	assert.EqualValues(t, 2, f.ds.CoinbaseRewardee(f.members[0].PubKey))
	assert.EqualValues(t, 2, f.ds.CoinbaseRewardee(f.members[2].PubKey))
	assert.EqualValues(t, 0, f.ds.CoinbaseRewardee(f.members[3].PubKey))
	assert.EqualValues(t, 10, f.ds.TotalTxnFees())

	// detached的下一阶段 - 回到microblock收集
	waitUntil(t, func() bool { return f.ds.State() == MicroblockSubmission },
		"state did not move to MICROBLOCK_SUBMISSION")
	waitUntil(t, func() bool { return f.node.Called("UpdateStateForNextConsensusRound") },
		"node state update not invoked")

	// 分发走了DataSender - my_id=2在lookup cohort窗口内
	waitUntil(t, func() bool { return len(f.transport.SentOfKind("broadcast")) >= 1 },
		"final block not disseminated")
}

// vacuous epoch - 刷盘、DSINCOMPLETED=0、开新的PoW轮、不记coinbase
func TestProcessFinalBlockConsensusWhenDoneVacuous(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)

	// NumFinalBlockPerPOW=3，epoch推到2使下一个提交是vacuous
	f.chain.IncreaseEpochNum()
	f.chain.IncreaseEpochNum()
	require.True(t, f.chain.IsVacuousEpoch())

	f.pendingFinalBlock(1)
	f.consensus.Cosigs = types.CoSignatures{
		CS1: []byte("cs1"), B1: []bool{true, true, true, false},
		CS2: []byte("cs2"), B2: []bool{true, true, true, false},
	}

	powCh := make(chan struct{}, 1)
	SetNewDSEpochHook(func() { powCh <- struct{}{} })(f.ds)

	f.ds.ProcessFinalBlockConsensusWhenDone()

	// DSINCOMPLETED清零
	meta, err := f.bstore.GetMetadata(store.MetaDSIncompleted)
	require.NoError(t, err)
	assert.Equal(t, []byte{'0'}, meta)

	// vacuous不记coinbase
	assert.EqualValues(t, 0, f.ds.CoinbaseRewardee(f.members[0].PubKey))
	assert.EqualValues(t, 0, f.ds.TotalTxnFees())

	// 开新的PoW轮
	waitUntil(t, func() bool {
		select {
		case <-powCh:
			return true
		default:
			return false
		}
	}, "StartNewDSEpochConsensus not triggered")
}

// 本地有microblock且非vacuous时要跑分片回调
func TestFinalBlockLocalMicroblockCallbacks(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)
	f.pendingFinalBlock(1)
	f.ds.SetLocalMicroBlock(&types.MicroBlock{ShardID: 0, EpochNum: 0, NumTxs: 2})

	f.ds.ProcessFinalBlockConsensusWhenDone()

	assert.True(t, f.node.Called("UpdateProcessedTransactions"))
	assert.True(t, f.node.Called("ActOnFinalBlock"))
}

// PoW连接表在final block提交时清空
func TestFinalBlockClearsPoWConnections(t *testing.T) {
	f := newFixture(t, 2, committee.BackupDS)
	f.pendingFinalBlock(1)

	_, ok := f.registry.PoWConn(f.winner.PubKey)
	require.True(t, ok)

	f.ds.ProcessFinalBlockConsensusWhenDone()

	_, ok = f.registry.PoWConn(f.winner.PubKey)
	assert.False(t, ok)
}
