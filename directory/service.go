package directory

import (
	"sync"
	"time"

	"dschain/committee"
	"dschain/config"
	"dschain/consensus"
	"dschain/libs/metric"
	"dschain/network"
	"dschain/state"
	"dschain/store"
	"dschain/types"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

// ShardNode DS core要回调的节点侧能力
// shard节点的epoch推进在本core之外实现
type ShardNode interface {
	// StartFirstTxEpoch 被驱逐的DS节点转为shard节点后从这里继续
	StartFirstTxEpoch()

	// LoadShardingStructure 作为shard节点加载新的分片结构
	LoadShardingStructure() bool

	// LoadTxnSharingInfo 作为shard节点加载txn sharing分配
	LoadTxnSharingInfo()

	// SetShardID 告知节点它落在哪个分片
	SetShardID(id uint32)

	// SetShardMembers 本epoch和自己同分片的peer集合
	SetShardMembers(peers []types.Peer)

	// CommitTxnPacketBuffer 重放缓存的txn packet
	CommitTxnPacketBuffer()

	// RunConsensusOnMicroBlock DS委员会自己的microblock共识
	RunConsensusOnMicroBlock()

	// UpdateProcessedTransactions final block提交后更新本地已处理交易
	UpdateProcessedTransactions()

	// ActOnFinalBlock final block提交后的分片回调
	ActOnFinalBlock()

	// UpdateStateForNextConsensusRound 进入下一轮共识前的节点状态更新
	UpdateStateForNextConsensusRound()
}

// bufferedMsg final block共识消息的缓存项
type bufferedMsg struct {
	from    types.Peer
	message []byte
}

// DirectoryService DS委员会共识DONE/ERROR之后的post-consensus状态机
// 共识原语、PoW提交、transport、codec都是注入的外部协作者
type DirectoryService struct {
	service.BaseService

	cfg *config.RuntimeConfig

	selfKey  types.PubKey
	selfPeer types.Peer

	chain      *state.ChainState
	registry   *committee.Registry
	blockStore *store.BlockStore
	accounts   state.AccountStore
	transport  network.Transport
	dataSender *network.DataSender
	node       ShardNode

	lookups []types.Peer

	// 锁顺序: consensusMtx → registry内部锁 → pending block锁 → 其余叶子锁
	consensusMtx    sync.Mutex
	consensusObject consensus.Object
	consensusID     uint32
	syncType        SyncType

	stateMtx sync.RWMutex
	nodeState NodeState

	// 本节点在委员会里的身份
	mode              committee.Mode
	consensusMyID     uint16
	consensusLeaderID uint16
	viewChangeCounter uint32

	pendingDSBlockMtx sync.Mutex
	pendingDSBlock    *types.DSBlock

	finalBlockMtx sync.Mutex
	finalBlock    *types.TxBlock

	microBlocksMtx          sync.Mutex
	microBlocks             []*types.MicroBlock
	localMicroBlock         *types.MicroBlock
	mbSubmissionBuffer      [][]byte
	stopRecvNewMBSubmission bool
	dsStartedMBConsensus    bool

	coinbaseMtx       sync.Mutex
	coinbaseRewardees map[string]uint64
	totalTxnFees      uint64

	fbBufferMtx               sync.Mutex
	finalBlockConsensusBuffer map[uint32][]bufferedMsg

	stateDeltaMtx        sync.Mutex
	stateDeltaFromShards [][]byte

	prepareRunMtx sync.Mutex

	// CV的channel化 - notify是非阻塞send，wait是select+超时
	cvDSBlockConsensus         chan struct{}
	cvDSBlockConsensusObject   chan struct{}
	cvProcessConsensusMessage  chan struct{}
	cvScheduleDSMBConsensus    chan struct{}
	cvScheduleFinalBlockCons   chan struct{}
	cvViewChangeDSBlock        chan struct{}
	cvViewChangeFinalBlock     chan struct{}
	cvMissingMicroBlock        chan struct{}
	cvMicroBlockMissingTxn     chan struct{}

	// 外部子系统的hook
	runConsensusOnFinalBlock   func(proceedWithoutMB bool)
	prepareFinalBlockConsensus func()
	startNewDSEpochConsensus   func()
	replaceNode                func()

	metrics *metric.MetricSet
}

type Option func(*DirectoryService)

func NewDirectoryService(
	cfg *config.RuntimeConfig,
	selfKey types.PubKey,
	selfPeer types.Peer,
	chain *state.ChainState,
	registry *committee.Registry,
	blockStore *store.BlockStore,
	accounts state.AccountStore,
	transport network.Transport,
	node ShardNode,
	options ...Option,
) *DirectoryService {
	ds := &DirectoryService{
		cfg:        cfg,
		selfKey:    selfKey,
		selfPeer:   selfPeer,
		chain:      chain,
		registry:   registry,
		blockStore: blockStore,
		accounts:   accounts,
		transport:  transport,
		node:       node,

		mode:      committee.BackupDS,
		nodeState: PowSubmission,

		coinbaseRewardees:         make(map[string]uint64),
		finalBlockConsensusBuffer: make(map[uint32][]bufferedMsg),

		cvDSBlockConsensus:        make(chan struct{}, 1),
		cvDSBlockConsensusObject:  make(chan struct{}, 1),
		cvProcessConsensusMessage: make(chan struct{}, 1),
		cvScheduleDSMBConsensus:   make(chan struct{}, 1),
		cvScheduleFinalBlockCons:  make(chan struct{}, 1),
		cvViewChangeDSBlock:       make(chan struct{}, 1),
		cvViewChangeFinalBlock:    make(chan struct{}, 1),
		cvMissingMicroBlock:       make(chan struct{}, 1),
		cvMicroBlockMissingTxn:    make(chan struct{}, 1),
	}

	ds.dataSender = network.NewDataSender(cfg, transport, log.NewNopLogger())
	ds.BaseService = *service.NewBaseService(nil, "DIRECTORY", ds)

	for _, opt := range options {
		opt(ds)
	}

	return ds
}

func SetConsensusObject(obj consensus.Object) Option {
	return func(ds *DirectoryService) { ds.consensusObject = obj }
}

func SetLookups(lookups []types.Peer) Option {
	return func(ds *DirectoryService) { ds.lookups = lookups }
}

func SetMode(mode committee.Mode) Option {
	return func(ds *DirectoryService) { ds.mode = mode }
}

func SetConsensusMyID(id uint16) Option {
	return func(ds *DirectoryService) { ds.consensusMyID = id }
}

func SetMetrics(ms *metric.MetricSet) Option {
	return func(ds *DirectoryService) { ds.metrics = ms }
}

// SetFinalBlockConsensusHooks 共识子系统注入的回调
func SetFinalBlockConsensusHooks(run func(bool), prepare func()) Option {
	return func(ds *DirectoryService) {
		ds.runConsensusOnFinalBlock = run
		ds.prepareFinalBlockConsensus = prepare
	}
}

// SetNewDSEpochHook PoW子系统注入的回调
func SetNewDSEpochHook(start func()) Option {
	return func(ds *DirectoryService) { ds.startNewDSEpochConsensus = start }
}

// SetReplaceNodeHook 升级子系统注入的回调
func SetReplaceNodeHook(replace func()) Option {
	return func(ds *DirectoryService) { ds.replaceNode = replace }
}

func (ds *DirectoryService) SetLogger(logger log.Logger) {
	ds.Logger = logger
	ds.dataSender = network.NewDataSender(ds.cfg, ds.transport, logger.With("module", "datasender"))
}

func (ds *DirectoryService) OnStart() error {
	ds.Logger.Info("directory service started.", "mode", ds.mode, "my_id", ds.consensusMyID)
	return nil
}

func (ds *DirectoryService) OnStop() {
	ds.Logger.Info("directory service stopped.")
}

// ----- 状态机accessor -----

func (ds *DirectoryService) SetState(s NodeState) {
	ds.stateMtx.Lock()
	old := ds.nodeState
	ds.nodeState = s
	ds.stateMtx.Unlock()
	ds.Logger.Debug("state transition", "from", old, "to", s)
}

func (ds *DirectoryService) State() NodeState {
	ds.stateMtx.RLock()
	defer ds.stateMtx.RUnlock()
	return ds.nodeState
}

func (ds *DirectoryService) Mode() committee.Mode {
	ds.stateMtx.RLock()
	defer ds.stateMtx.RUnlock()
	return ds.mode
}

func (ds *DirectoryService) setMode(m committee.Mode) {
	ds.stateMtx.Lock()
	ds.mode = m
	ds.stateMtx.Unlock()
}

func (ds *DirectoryService) ConsensusMyID() uint16 {
	ds.stateMtx.RLock()
	defer ds.stateMtx.RUnlock()
	return ds.consensusMyID
}

func (ds *DirectoryService) ConsensusLeaderID() uint16 {
	ds.stateMtx.RLock()
	defer ds.stateMtx.RUnlock()
	return ds.consensusLeaderID
}

func (ds *DirectoryService) ConsensusID() uint32 {
	ds.stateMtx.RLock()
	defer ds.stateMtx.RUnlock()
	return ds.consensusID
}

// SetSyncType 节点进入rejoin/sync流程时由外部设置
// 所有等待中的handler在下一次谓词检查时放弃处理
func (ds *DirectoryService) SetSyncType(st SyncType) {
	ds.stateMtx.Lock()
	ds.syncType = st
	ds.stateMtx.Unlock()
}

func (ds *DirectoryService) getSyncType() SyncType {
	ds.stateMtx.RLock()
	defer ds.stateMtx.RUnlock()
	return ds.syncType
}

// SetPendingDSBlock 共识层把待提交的DS block交进来
func (ds *DirectoryService) SetPendingDSBlock(block *types.DSBlock) {
	ds.pendingDSBlockMtx.Lock()
	ds.pendingDSBlock = block
	ds.pendingDSBlockMtx.Unlock()
}

// SetPendingFinalBlock 共识层把待提交的final block交进来
func (ds *DirectoryService) SetPendingFinalBlock(block *types.TxBlock) {
	ds.finalBlockMtx.Lock()
	ds.finalBlock = block
	ds.finalBlockMtx.Unlock()
}

// SetLocalMicroBlock 本DS委员会产出的microblock
func (ds *DirectoryService) SetLocalMicroBlock(mb *types.MicroBlock) {
	ds.microBlocksMtx.Lock()
	ds.localMicroBlock = mb
	ds.microBlocksMtx.Unlock()
}

// SetConsensus 进入新一轮共识时换入新的共识对象
func (ds *DirectoryService) SetConsensus(obj consensus.Object, consensusID uint32) {
	ds.consensusMtx.Lock()
	ds.consensusObject = obj
	ds.consensusMtx.Unlock()

	ds.stateMtx.Lock()
	ds.consensusID = consensusID
	ds.stateMtx.Unlock()

	// 等在pre-consensus状态上的handler可以继续了
	notify(ds.cvDSBlockConsensusObject)
}

// NotifyMissingMicroBlock 补块子系统取回了缺失的microblock
func (ds *DirectoryService) NotifyMissingMicroBlock() {
	notify(ds.cvMissingMicroBlock)
}

// NotifyMissingTxn 补块子系统取回了缺失的交易
func (ds *DirectoryService) NotifyMissingTxn() {
	notify(ds.cvMicroBlockMissingTxn)
}

// ----- CV helpers -----

// notify 非阻塞的notify_all近似 - buffer为1的channel
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// waitSignal 带超时的等待，true表示收到信号
func waitSignal(ch chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (ds *DirectoryService) incMetric(label string) {
	if ds.metrics == nil {
		return
	}
	if item, ok := ds.metrics.GetMetrics(label).(*metric.EpochCounter); ok && item != nil {
		item.Inc()
	}
}
