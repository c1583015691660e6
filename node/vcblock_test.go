package node

import (
	"testing"
	"time"

	"dschain/committee"
	"dschain/config"
	"dschain/crypto/multisig"
	"dschain/messenger"
	"dschain/network"
	"dschain/state"
	"dschain/store"
	"dschain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	kyber "go.dedis.ch/kyber/v3"
	tmdb "github.com/tendermint/tm-db/memdb"
)

type nodeFixture struct {
	cfg       *config.RuntimeConfig
	node      *Node
	registry  *committee.Registry
	chain     *state.ChainState
	bstore    *store.BlockStore
	transport *network.MockTransport
	members   []types.PairOfNode
	privs     []kyber.Scalar
}

// newNodeFixture n个成员的委员会，私钥保留下来给cosig签名用
func newNodeFixture(t *testing.T, n int) *nodeFixture {
	t.Helper()
	cfg := config.TestRuntimeConfig()
	logger := log.TestingLogger()

	members := make([]types.PairOfNode, n)
	privs := make([]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		priv := types.Suite.Scalar().Pick(types.Suite.RandomStream())
		privs[i] = priv
		members[i] = types.PairOfNode{
			PubKey: types.NewPubKey(types.Suite.Point().Mul(priv, nil)),
			Peer:   types.NewPeer("127.0.0.1", uint32(26000+i)),
		}
	}

	registry := committee.NewRegistry(types.NewCommittee(members), logger)
	chain := state.NewChainState(cfg.NumFinalBlockPerPOW, logger)
	bstore := store.NewBlockStoreWithDB(tmdb.NewDB(), logger)
	transport := network.NewMockTransport()

	nd := NewNode(cfg, members[0].PubKey, members[0].Peer,
		chain, registry, bstore, transport)
	nd.SetLogger(logger)

	return &nodeFixture{
		cfg: cfg, node: nd, registry: registry, chain: chain,
		bstore: bstore, transport: transport, members: members, privs: privs,
	}
}

// prepareChain 链推进到(tail ds, epoch)
func (f *nodeFixture) prepareChain(t *testing.T, tailDS uint64, epoch uint64) {
	for i := uint64(1); i <= tailDS; i++ {
		require.NoError(t, f.chain.AppendDS(&types.DSBlock{
			Header: types.DSBlockHeader{BlockNum: i, MinerPubKey: f.members[0].PubKey},
		}))
	}
	for i := uint64(0); i < epoch; i++ {
		f.chain.IncreaseEpochNum()
	}
}

// makeVCBlock 构造一个对当前链状态合法的VC block并正确签名
// 签名阈值要求必须恰好NumForConsensus个位置为1
func (f *nodeFixture) makeVCBlock(t *testing.T, faulty []types.PairOfNode, signers []int) *types.VCBlock {
	b1 := make([]bool, len(f.members))
	b2 := make([]bool, len(f.members))
	for _, s := range signers {
		b1[s] = true
		b2[s] = true
	}

	vc := &types.VCBlock{
		Header: types.VCBlockHeader{
			VCDSEpochNo:     f.chain.TailDSNum() + 1,
			VCEpochNo:       f.chain.CurrentEpochNum(),
			ViewChangeState: types.ViewChangeFinalBlock,
			FaultyLeaders:   faulty,
			CommitteeHash:   f.registry.CommitteeHash(),
			Timestamp:       time.Now().Unix(),
		},
	}
	vc.Cosigs.CS1 = []byte("cs1")
	vc.Cosigs.B1 = b1
	vc.Cosigs.B2 = b2

	// CS2签header ∥ CS1 ∥ B1 - 聚合私钥等于逐个私钥之和
	message := vc.Header.Serialize()
	message = append(message, vc.Cosigs.CS1...)
	message = append(message, types.PackBitVector(vc.Cosigs.B1)...)

	aggPriv := types.Suite.Scalar().Zero()
	for _, s := range signers {
		aggPriv = types.Suite.Scalar().Add(aggPriv, f.privs[s])
	}
	sig, err := multisig.Sign(aggPriv, message)
	require.NoError(t, err)
	vc.Cosigs.CS2 = sig

	vc.BlockHash = vc.Hash()
	return vc
}

func encodeVC(t *testing.T, vc *types.VCBlock) []byte {
	msg, err := messenger.SetNodeVCBlock(vc)
	require.NoError(t, err)
	return msg
}

// 合法VC block - 验证通过、入链、落盘、委员会reorder
func TestProcessVCBlockSuccess(t *testing.T) {
	f := newNodeFixture(t, 1)
	f.prepareChain(t, 1, 3)

	vc := f.makeVCBlock(t, nil, []int{0})
	ok := f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer)
	require.True(t, ok)

	// block link登记了VC节点
	assert.EqualValues(t, 1, f.chain.LatestLinkIndex())

	// 落盘
	bz, err := f.bstore.GetVCBlock(vc.BlockHash)
	require.NoError(t, err)
	assert.NotEmpty(t, bz)

	// faulty leaders为空 - 委员会不变 (R2)
	comm := f.registry.Committee()
	assert.True(t, comm.Front().PubKey.Equals(f.members[0].PubKey))
}

// 验证通过后非lookup节点树形转发给同分片
func TestProcessVCBlockTreeRebroadcast(t *testing.T) {
	f := newNodeFixture(t, 1)
	f.prepareChain(t, 1, 3)
	f.cfg.BroadcastTreebasedCluster = true
	f.node.SetMyShardPeers([]types.Peer{
		types.NewPeer("10.2.0.1", 5001),
		types.NewPeer("10.2.0.2", 5001),
		types.NewPeer("10.2.0.3", 5001),
	})

	vc := f.makeVCBlock(t, nil, []int{0})
	require.True(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))

	assert.NotEmpty(t, f.transport.SentOfKind("broadcast"))
}

// DS block阶段的VC要走另外的路径，这里拒绝
func TestProcessVCBlockRejectsDSBlockPhase(t *testing.T) {
	f := newNodeFixture(t, 1)
	f.prepareChain(t, 1, 3)

	vc := f.makeVCBlock(t, nil, []int{0})
	vc.Header.ViewChangeState = types.ViewChangeDSBlock
	vc.BlockHash = vc.Hash()

	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))
}

// 验证顺序的各个短路分支
func TestProcessVCBlockValidationFailures(t *testing.T) {
	f := newNodeFixture(t, 4)
	f.prepareChain(t, 1, 3)

	// epoch不一致
	vc := f.makeVCBlock(t, nil, []int{0, 1, 2})
	vc.Header.VCEpochNo = 99
	vc.BlockHash = vc.Hash()
	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))

	// 不是最新的ds epoch
	vc = f.makeVCBlock(t, nil, []int{0, 1, 2})
	vc.Header.VCDSEpochNo = 7
	vc.BlockHash = vc.Hash()
	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))

	// 区块hash对不上
	vc = f.makeVCBlock(t, nil, []int{0, 1, 2})
	vc.BlockHash = []byte("wrong hash")
	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))

	// 时间戳超窗
	vc = f.makeVCBlock(t, nil, []int{0, 1, 2})
	vc.Header.Timestamp = time.Now().Add(-24 * time.Hour).Unix()
	vc.BlockHash = vc.Hash()
	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))

	// 委员会hash对不上
	vc = f.makeVCBlock(t, nil, []int{0, 1, 2})
	vc.Header.CommitteeHash = []byte("stale committee")
	vc.BlockHash = vc.Hash()
	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))
}

// B2和委员会大小不一致 - cosig size mismatch (B2)
func TestProcessVCBlockCosigSizeMismatch(t *testing.T) {
	f := newNodeFixture(t, 4)
	f.prepareChain(t, 1, 3)

	vc := f.makeVCBlock(t, nil, []int{0, 1, 2})
	vc.Cosigs.B2 = vc.Cosigs.B2[:3]
	vc.BlockHash = vc.Hash()

	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))
}

// 签名者数量不等于BFT阈值
func TestProcessVCBlockNotEnoughSigners(t *testing.T) {
	f := newNodeFixture(t, 4)
	f.prepareChain(t, 1, 3)

	// NumForConsensus(4)=3，只有1个签名者
	vc := f.makeVCBlock(t, nil, []int{0})
	assert.False(t, f.node.ProcessVCBlock(encodeVC(t, vc), f.members[0].Peer))
}
