package committee

import (
	"sync"

	"dschain/types"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/log"
)

// Mode 节点在DS委员会中的角色
type Mode uint8

const (
	Idle      = Mode(0) // 不在委员会里，作为shard节点运行
	PrimaryDS = Mode(1)
	BackupDS  = Mode(2)
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "IDLE"
	case PrimaryDS:
		return "PRIMARY_DS"
	case BackupDS:
		return "BACKUP_DS"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrCommitteeDesync VC reorder找不到指定的faulty leader
	// 说明本地委员会和网络视图已经分叉，节点必须退出
	ErrCommitteeDesync = errors.New("faulty leader not found in committee")
)

func NewRegistry(committee *types.Committee, logger log.Logger) *Registry {
	return &Registry{
		committee:       committee,
		pubKeyToShardID: make(map[string]uint32),
		reputation:      make(map[string]uint32),
		powConns:        make(map[string]types.Peer),
		logger:          logger,
	}
}

// Registry DS委员会、分片表和PoW连接表的唯一持有者
// 所有变更都在registry自己的锁下完成，reader短暂拿同一把锁
type Registry struct {
	mtx sync.RWMutex

	committee *types.Committee

	// 当前epoch的分片结构和txn sharing分配
	shards          types.DequeOfShard
	pubKeyToShardID map[string]uint32
	reputation      map[string]uint32
	dsReceivers     []types.Peer
	shardReceivers  [][]types.Peer
	shardSenders    [][]types.Peer

	// backup在DS block共识期间shadow构建的下一轮结构
	// 共识DONE后原子换入live字段
	tmpShards          types.DequeOfShard
	tmpPubKeyToShardID map[string]uint32
	tmpReputation      map[string]uint32
	tmpDSReceivers     []types.Peer
	tmpShardReceivers  [][]types.Peer
	tmpShardSenders    [][]types.Peer

	// PoW提交者连接表，单独一把锁
	powMtx   sync.Mutex
	powConns map[string]types.Peer

	logger log.Logger
}

// Committee 返回当前委员会的副本
func (r *Registry) Committee() *types.Committee {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.committee.Copy()
}

func (r *Registry) Size() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.committee.Size()
}

func (r *Registry) CommitteeHash() tmbytes.HexBytes {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.committee.Hash()
}

// MemberAt index处成员的副本
func (r *Registry) MemberAt(index int) types.PairOfNode {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.committee.At(index)
}

// RotateForNewDSBlock DS block提交后的委员会轮换
// winner插到头部，最老的backup被驱逐，winner从PoW连接表里删掉
// 轮换前后委员会大小不变
func (r *Registry) RotateForNewDSBlock(winner types.PairOfNode) {
	r.mtx.Lock()
	r.committee.PushFront(winner)
	evicted := r.committee.PopBack()
	r.mtx.Unlock()

	r.DeletePoWConn(winner.PubKey)

	r.logger.Info("ds committee rotated",
		"winner", winner.PubKey, "evicted", evicted.PubKey)
}

// ComputeLeaderIndex 用最新tx block的hash16推导下一任leader下标
// 下标0表示新的PoW winner就是leader
func (r *Registry) ComputeLeaderIndex(lastBlockHash16 uint16) uint16 {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return lastBlockHash16 % uint16(r.committee.Size())
}

// UpdateSelfModeAndID rotation前根据自己的位置推导下一轮的角色
// 返回(新mode, 新my_id, 新leader_id)
// 最老的backup出委员会转为IDLE，其余成员下标+1
func (r *Registry) UpdateSelfModeAndID(myID uint16, selfKey types.PubKey, lastBlockHash16 uint16) (Mode, uint16, uint16) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	size := r.committee.Size()
	if int(myID)+1 == size {
		// 我是最老的backup，出委员会去当shard节点
		r.logger.Info("I am the oldest backup DS, becoming a shard node")
		return Idle, myID, 0
	}

	leaderID := lastBlockHash16 % uint16(size)
	mode := BackupDS
	// leaderID==0时PoW winner是leader；否则pre-rotation下标leaderID-1的成员
	// rotation后会移到leaderID的位置
	if leaderID > 0 && r.committee.At(int(leaderID)-1).PubKey.Equals(selfKey) {
		mode = PrimaryDS
	}

	return mode, myID + 1, leaderID
}

// SetTempShardTable backup在共识期间shadow更新下一轮分片结构
func (r *Registry) SetTempShardTable(
	shards types.DequeOfShard,
	pubKeyToShardID map[string]uint32,
	reputation map[string]uint32,
	dsReceivers []types.Peer,
	shardReceivers [][]types.Peer,
	shardSenders [][]types.Peer,
) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.tmpShards = shards
	r.tmpPubKeyToShardID = pubKeyToShardID
	r.tmpReputation = reputation
	r.tmpDSReceivers = dsReceivers
	r.tmpShardReceivers = shardReceivers
	r.tmpShardSenders = shardSenders
}

// SetShardTable primary不走shadow路径，直接写live字段
func (r *Registry) SetShardTable(
	shards types.DequeOfShard,
	pubKeyToShardID map[string]uint32,
	reputation map[string]uint32,
	dsReceivers []types.Peer,
	shardReceivers [][]types.Peer,
	shardSenders [][]types.Peer,
) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.shards = shards
	r.pubKeyToShardID = pubKeyToShardID
	r.reputation = reputation
	r.dsReceivers = dsReceivers
	r.shardReceivers = shardReceivers
	r.shardSenders = shardSenders
}

// SwapShardTable 共识DONE后把shadow字段原子换入live
func (r *Registry) SwapShardTable() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.shards = r.tmpShards
	r.pubKeyToShardID = r.tmpPubKeyToShardID
	r.reputation = r.tmpReputation
	r.dsReceivers = r.tmpDSReceivers
	r.shardReceivers = r.tmpShardReceivers
	r.shardSenders = r.tmpShardSenders

	r.tmpShards = nil
	r.tmpPubKeyToShardID = nil
	r.tmpReputation = nil
	r.tmpDSReceivers = nil
	r.tmpShardReceivers = nil
	r.tmpShardSenders = nil
}

func (r *Registry) Shards() types.DequeOfShard {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	shards := make(types.DequeOfShard, len(r.shards))
	copy(shards, r.shards)
	return shards
}

func (r *Registry) ShardCount() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.shards)
}

// ShardIDOf 公钥对应的shard id
func (r *Registry) ShardIDOf(pubKey types.PubKey) (uint32, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	id, ok := r.pubKeyToShardID[pubKey.MapKey()]
	return id, ok
}

func (r *Registry) AddPoWConn(pubKey types.PubKey, peer types.Peer) {
	r.powMtx.Lock()
	defer r.powMtx.Unlock()
	r.powConns[pubKey.MapKey()] = peer
}

func (r *Registry) PoWConn(pubKey types.PubKey) (types.Peer, bool) {
	r.powMtx.Lock()
	defer r.powMtx.Unlock()

	peer, ok := r.powConns[pubKey.MapKey()]
	return peer, ok
}

func (r *Registry) DeletePoWConn(pubKey types.PubKey) {
	r.powMtx.Lock()
	defer r.powMtx.Unlock()
	delete(r.powConns, pubKey.MapKey())
}

func (r *Registry) ClearPoWConns() {
	r.powMtx.Lock()
	defer r.powMtx.Unlock()
	r.powConns = make(map[string]types.Peer)
}

// ReorderForVC 把VC block记录的faulty leader逐个挪到委员会尾部
// 非faulty成员的相对顺序保持不变
// 本地节点自己是faulty leader时，vc block里的peer是哨兵零值
func (r *Registry) ReorderForVC(faultyLeaders []types.PairOfNode, selfKey types.PubKey, guardMode bool) error {
	if guardMode {
		r.logger.Info("in guard mode, no updating of DS composition required")
		return nil
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, faulty := range faultyLeaders {
		var idx int
		if faulty.PubKey.Equals(selfKey) && faulty.Peer.IsZero() {
			idx = r.committee.Find(types.PairOfNode{PubKey: faulty.PubKey})
		} else {
			idx = r.committee.Find(faulty)
		}

		if idx < 0 {
			return errors.Wrapf(ErrCommitteeDesync, "faulty leader %v", faulty.PubKey)
		}

		r.committee.Erase(idx)
		r.committee.PushBack(faulty)
	}

	return nil
}
