package state

import (
	"testing"

	"dschain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func makeDSBlock(num uint64) *types.DSBlock {
	priv := types.Suite.Scalar().Pick(types.Suite.RandomStream())
	return &types.DSBlock{
		Header: types.DSBlockHeader{
			BlockNum:    num,
			MinerPubKey: types.NewPubKey(types.Suite.Point().Mul(priv, nil)),
			Nonce:       num * 7,
		},
	}
}

func makeTxBlock(num uint64) *types.TxBlock {
	return &types.TxBlock{
		Header: types.TxBlockHeader{BlockNum: num, NumTxs: 3},
	}
}

// DS链和TX链的区块号必须严格+1递增
func TestAppendMonotone(t *testing.T) {
	cs := NewChainState(100, log.TestingLogger())

	require.NoError(t, cs.AppendDS(makeDSBlock(1)))
	require.NoError(t, cs.AppendDS(makeDSBlock(2)))
	assert.EqualValues(t, 2, cs.TailDSNum())

	// 跳号和重复的区块都要报ChainGap
	err := cs.AppendDS(makeDSBlock(4))
	assert.ErrorIs(t, err, ErrChainGap)
	err = cs.AppendDS(makeDSBlock(2))
	assert.ErrorIs(t, err, ErrChainGap)
	assert.EqualValues(t, 2, cs.TailDSNum())

	require.NoError(t, cs.AppendTx(makeTxBlock(1)))
	require.NoError(t, cs.AppendTx(makeTxBlock(2)))
	err = cs.AppendTx(makeTxBlock(2))
	assert.ErrorIs(t, err, ErrChainGap)
	assert.EqualValues(t, 2, cs.TailTxNum())
}

// epoch只能在final block提交的时候+1
func TestEpochIncrement(t *testing.T) {
	cs := NewChainState(100, log.TestingLogger())
	assert.EqualValues(t, 0, cs.CurrentEpochNum())

	require.NoError(t, cs.AppendTx(makeTxBlock(1)))
	cs.IncreaseEpochNum()
	assert.EqualValues(t, 1, cs.CurrentEpochNum())

	// DS block提交不影响epoch
	require.NoError(t, cs.AppendDS(makeDSBlock(1)))
	assert.EqualValues(t, 1, cs.CurrentEpochNum())
}

func TestVacuousEpoch(t *testing.T) {
	cs := NewChainState(3, log.TestingLogger())

	// epoch 0,1不是vacuous，epoch 2是cycle的最后一个
	assert.False(t, cs.IsVacuousEpoch())
	cs.IncreaseEpochNum()
	assert.False(t, cs.IsVacuousEpoch())
	cs.IncreaseEpochNum()
	assert.True(t, cs.IsVacuousEpoch())
}

func TestRandChainUpdates(t *testing.T) {
	cs := NewChainState(100, log.TestingLogger())
	before := cs.DSBlockRand()

	// 空链上更新是no-op
	cs.UpdateDSBlockRand()
	assert.Equal(t, before, cs.DSBlockRand())

	require.NoError(t, cs.AppendDS(makeDSBlock(1)))
	cs.UpdateDSBlockRand()
	after := cs.DSBlockRand()
	assert.NotEqual(t, before, after)

	// 再提交一个区块，种子继续往前滚
	require.NoError(t, cs.AppendDS(makeDSBlock(2)))
	cs.UpdateDSBlockRand()
	assert.NotEqual(t, after, cs.DSBlockRand())
}

func TestLatestActiveDSBlockNumMonotone(t *testing.T) {
	cs := NewChainState(100, log.TestingLogger())

	cs.SetLatestActiveDSBlockNum(5)
	assert.EqualValues(t, 5, cs.LatestActiveDSBlockNum())

	// 回退的更新被忽略
	cs.SetLatestActiveDSBlockNum(3)
	assert.EqualValues(t, 5, cs.LatestActiveDSBlockNum())
}

func TestIsLatest(t *testing.T) {
	cs := NewChainState(100, log.TestingLogger())
	require.NoError(t, cs.AppendDS(makeDSBlock(1)))
	cs.IncreaseEpochNum()
	cs.IncreaseEpochNum()

	assert.True(t, cs.IsLatest(2, 2))
	assert.False(t, cs.IsLatest(1, 2))
	assert.False(t, cs.IsLatest(2, 1))
}

func TestBlockLinkChain(t *testing.T) {
	cs := NewChainState(100, log.TestingLogger())
	assert.EqualValues(t, 0, cs.LatestLinkIndex())

	cs.AppendLink(1, 1, DSKind, []byte("ds hash"))
	cs.AppendLink(2, 1, VCKind, []byte("vc hash"))
	assert.EqualValues(t, 2, cs.LatestLinkIndex())
}
