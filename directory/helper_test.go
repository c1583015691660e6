package directory

import (
	"os"
	"sync"
	"testing"
	"time"

	"dschain/committee"
	"dschain/config"
	consmock "dschain/consensus/mock"
	"dschain/network"
	"dschain/state"
	"dschain/store"
	"dschain/types"

	"github.com/go-kit/kit/log/term"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db/memdb"
)

// directoryLogger 按module染色的测试logger
func directoryLogger() log.Logger {
	return log.NewTMLoggerWithColorFn(log.NewSyncWriter(os.Stdout),
		func(keyvals ...interface{}) term.FgBgColor {
			for i := 0; i < len(keyvals)-1; i += 2 {
				if keyvals[i] == "module" && keyvals[i+1] == "directory" {
					return term.FgBgColor{Fg: term.Yellow}
				}
			}
			return term.FgBgColor{}
		})
}

// stubShardNode 记录directory回调的测试替身
type stubShardNode struct {
	mtx sync.Mutex

	shardID uint32
	calls   []string
}

func (sn *stubShardNode) record(call string) {
	sn.mtx.Lock()
	defer sn.mtx.Unlock()
	sn.calls = append(sn.calls, call)
}

func (sn *stubShardNode) Calls() []string {
	sn.mtx.Lock()
	defer sn.mtx.Unlock()

	out := make([]string, len(sn.calls))
	copy(out, sn.calls)
	return out
}

func (sn *stubShardNode) Called(name string) bool {
	for _, c := range sn.Calls() {
		if c == name {
			return true
		}
	}
	return false
}

func (sn *stubShardNode) StartFirstTxEpoch() { sn.record("StartFirstTxEpoch") }
func (sn *stubShardNode) LoadShardingStructure() bool {
	sn.record("LoadShardingStructure")
	return true
}
func (sn *stubShardNode) LoadTxnSharingInfo() { sn.record("LoadTxnSharingInfo") }
func (sn *stubShardNode) SetShardID(id uint32) {
	sn.mtx.Lock()
	sn.shardID = id
	sn.mtx.Unlock()
	sn.record("SetShardID")
}
func (sn *stubShardNode) ShardID() uint32 {
	sn.mtx.Lock()
	defer sn.mtx.Unlock()
	return sn.shardID
}
func (sn *stubShardNode) SetShardMembers(peers []types.Peer) { sn.record("SetShardMembers") }
func (sn *stubShardNode) CommitTxnPacketBuffer()        { sn.record("CommitTxnPacketBuffer") }
func (sn *stubShardNode) RunConsensusOnMicroBlock()     { sn.record("RunConsensusOnMicroBlock") }
func (sn *stubShardNode) UpdateProcessedTransactions()  { sn.record("UpdateProcessedTransactions") }
func (sn *stubShardNode) ActOnFinalBlock()              { sn.record("ActOnFinalBlock") }
func (sn *stubShardNode) UpdateStateForNextConsensusRound() {
	sn.record("UpdateStateForNextConsensusRound")
}

// testFixture 一套完整的DS core测试装配
type testFixture struct {
	cfg       *config.RuntimeConfig
	ds        *DirectoryService
	members   []types.PairOfNode
	winner    types.PairOfNode
	registry  *committee.Registry
	chain     *state.ChainState
	bstore    *store.BlockStore
	transport *network.MockTransport
	node      *stubShardNode
	consensus *consmock.Object
	lookups   []types.Peer
}

func randPair(port uint32) types.PairOfNode {
	priv := types.Suite.Scalar().Pick(types.Suite.RandomStream())
	return types.PairOfNode{
		PubKey: types.NewPubKey(types.Suite.Point().Mul(priv, nil)),
		Peer:   types.NewPeer("127.0.0.1", port),
	}
}

// newFixture 委员会大小4，2个分片，本节点身份由myID和mode指定
func newFixture(t *testing.T, myID uint16, mode committee.Mode) *testFixture {
	t.Helper()
	cfg := config.TestRuntimeConfig()
	logger := log.TestingLogger()

	members := make([]types.PairOfNode, 4)
	for i := range members {
		members[i] = randPair(uint32(26000 + i))
	}
	registry := committee.NewRegistry(types.NewCommittee(members), logger)

	// 2个分片，每个2个成员；分片leader的公钥登记到shard id map
	shards := make(types.DequeOfShard, 2)
	pkMap := make(map[string]uint32)
	for i := range shards {
		for j := 0; j < 2; j++ {
			m := randPair(uint32(27000 + i*10 + j))
			shards[i] = append(shards[i], types.ShardMember{
				PubKey: m.PubKey, Peer: m.Peer, Reputation: 1,
			})
		}
		pkMap[shards[i][0].PubKey.MapKey()] = uint32(i)
	}
	registry.SetShardTable(shards, pkMap, nil, nil, nil, nil)
	// backup路径在DONE时会swap，shadow先填同一份表
	registry.SetTempShardTable(shards, pkMap, nil, nil, nil, nil)

	chain := state.NewChainState(cfg.NumFinalBlockPerPOW, logger)
	bstore := store.NewBlockStoreWithDB(tmdb.NewDB(), logger)
	transport := network.NewMockTransport()
	shardNode := &stubShardNode{}
	consObj := consmock.NewObject(0)

	winner := randPair(28000)
	registry.AddPoWConn(winner.PubKey, winner.Peer)

	self := members[myID]
	lookups := []types.Peer{types.NewPeer("10.1.0.1", 4001), types.NewPeer("10.1.0.2", 4001)}

	ds := NewDirectoryService(
		cfg, self.PubKey, self.Peer,
		chain, registry, bstore, state.NewMemAccountStore(),
		transport, shardNode,
		SetConsensusObject(consObj),
		SetLookups(lookups),
		SetMode(mode),
		SetConsensusMyID(myID),
	)
	ds.SetLogger(logger)

	return &testFixture{
		cfg:       cfg,
		ds:        ds,
		members:   members,
		winner:    winner,
		registry:  registry,
		chain:     chain,
		bstore:    bstore,
		transport: transport,
		node:      shardNode,
		consensus: consObj,
		lookups:   lookups,
	}
}

// pendingDSBlock 挂一个编号为num、winner为矿工的待提交DS block
func (f *testFixture) pendingDSBlock(num uint64) *types.DSBlock {
	block := &types.DSBlock{
		Header: types.DSBlockHeader{
			BlockNum:    num,
			MinerPubKey: f.winner.PubKey,
			Nonce:       42,
			Timestamp:   time.Now().Unix(),
		},
	}
	f.ds.SetPendingDSBlock(block)
	return block
}

func (f *testFixture) pendingFinalBlock(num uint64) *types.TxBlock {
	block := &types.TxBlock{
		Header: types.TxBlockHeader{
			BlockNum:  num,
			NumTxs:    5,
			Rewards:   10,
			Timestamp: time.Now().Unix(),
		},
	}
	f.ds.SetPendingFinalBlock(block)
	return block
}

// waitUntil 轮询直到条件满足或超时
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
