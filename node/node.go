package node

import (
	"sync"

	"dschain/committee"
	"dschain/config"
	"dschain/network"
	"dschain/state"
	"dschain/store"
	"dschain/types"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

// Node 承载DS core的节点侧
// 处理VC block、承接被驱逐DS成员的shard节点职责
type Node struct {
	service.BaseService

	cfg *config.RuntimeConfig

	selfKey  types.PubKey
	selfPeer types.Peer

	chain      *state.ChainState
	registry   *committee.Registry
	blockStore *store.BlockStore
	transport  network.Transport

	mtx           sync.Mutex
	shardID       uint32
	isPrimary     bool
	myShardPeers  []types.Peer
	txnPacketBuf  [][]byte
	processedTxns uint64
}

type Option func(*Node)

func NewNode(
	cfg *config.RuntimeConfig,
	selfKey types.PubKey,
	selfPeer types.Peer,
	chain *state.ChainState,
	registry *committee.Registry,
	blockStore *store.BlockStore,
	transport network.Transport,
	options ...Option,
) *Node {
	n := &Node{
		cfg:        cfg,
		selfKey:    selfKey,
		selfPeer:   selfPeer,
		chain:      chain,
		registry:   registry,
		blockStore: blockStore,
		transport:  transport,
	}
	n.BaseService = *service.NewBaseService(nil, "NODE", n)

	for _, opt := range options {
		opt(n)
	}
	return n
}

func (n *Node) SetLogger(logger log.Logger) {
	n.Logger = logger
}

func (n *Node) OnStart() error {
	n.Logger.Info("node started.", "peer", n.selfPeer)
	return nil
}

func (n *Node) OnStop() {
	n.Logger.Info("node stopped.")
}

// SetMyShardPeers VC rebroadcast用的同分片peer列表
func (n *Node) SetMyShardPeers(peers []types.Peer) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.myShardPeers = peers
}

// SetShardMembers directory在epoch推进时绑定同分片成员
func (n *Node) SetShardMembers(peers []types.Peer) {
	n.SetMyShardPeers(peers)
}

// ----- directory.ShardNode -----

// SetShardID directory告知本节点落在哪个分片
// 值等于分片数时表示"我是DS成员"的哨兵
func (n *Node) SetShardID(id uint32) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.shardID = id
}

func (n *Node) ShardID() uint32 {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.shardID
}

// StartFirstTxEpoch 被驱逐的DS节点以shard节点身份开始新epoch
func (n *Node) StartFirstTxEpoch() {
	n.Logger.Info("starting first tx epoch as a shard node", "shard", n.ShardID())
}

// LoadShardingStructure 从registry加载自己分片的成员
func (n *Node) LoadShardingStructure() bool {
	shards := n.registry.Shards()
	id := n.ShardID()
	if int(id) >= len(shards) {
		n.Logger.Error("my shard id is out of range", "shard", id, "num_shards", len(shards))
		return false
	}

	n.mtx.Lock()
	n.myShardPeers = shards[id].Peers()
	n.isPrimary = len(shards[id]) > 0 && shards[id][0].PubKey.Equals(n.selfKey)
	n.mtx.Unlock()

	n.Logger.Info("loaded sharding structure", "shard", id, "members", len(shards[id]))
	return true
}

// LoadTxnSharingInfo 加载txn sharing分配
func (n *Node) LoadTxnSharingInfo() {
	n.Logger.Info("loaded txn sharing info", "shard", n.ShardID())
}

// CommitTxnPacketBuffer 重放缓存的txn packet
func (n *Node) CommitTxnPacketBuffer() {
	n.mtx.Lock()
	buffered := n.txnPacketBuf
	n.txnPacketBuf = nil
	n.mtx.Unlock()

	for range buffered {
		n.Logger.Debug("replaying buffered txn packet")
	}
}

// BufferTxnPacket 不在接收窗口时缓存txn packet
func (n *Node) BufferTxnPacket(message []byte) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.txnPacketBuf = append(n.txnPacketBuf, message)
}

// RunConsensusOnMicroBlock DS委员会自己的microblock共识入口
func (n *Node) RunConsensusOnMicroBlock() {
	n.Logger.Info("running consensus on DS microblock")
}

// UpdateProcessedTransactions final block提交后推进本地交易记录
func (n *Node) UpdateProcessedTransactions() {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.processedTxns++
}

// ActOnFinalBlock final block提交后的分片回调
func (n *Node) ActOnFinalBlock() {
	n.Logger.Debug("acting on final block")
}

// UpdateStateForNextConsensusRound 进入下一轮共识前的节点状态更新
func (n *Node) UpdateStateForNextConsensusRound() {
	n.mtx.Lock()
	n.isPrimary = false
	n.mtx.Unlock()
}
