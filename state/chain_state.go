package state

import (
	"sync"

	"dschain/libs/hashutil"
	"dschain/types"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// BlockKind block link chain里登记的区块类型
type BlockKind uint8

const (
	DSKind = BlockKind(1)
	VCKind = BlockKind(2)
)

// BlockLink 把非tx区块按发生顺序串起来的链节点
type BlockLink struct {
	Index     uint64
	DSEpochNo uint64
	Kind      BlockKind
	BlockHash []byte
}

var (
	// ErrChainGap 进来的区块号不等于tail+1
	// 只是告警信号，caller仍然会把区块写进存储，补块由外部机制负责
	ErrChainGap = errors.New("block number does not follow chain tail")
)

func NewChainState(numFinalBlockPerPOW uint64, logger log.Logger) *ChainState {
	return &ChainState{
		numFinalBlockPerPOW: numFinalBlockPerPOW,
		dsBlockRand:         hashutil.Sum([]byte("ds genesis rand")),
		txBlockRand:         hashutil.Sum([]byte("tx genesis rand")),
		logger:              logger,
	}
}

// ChainState 内存里append-only的链状态
// DS链、TX链、block link链各自维护尾部，epoch计数只在final block提交时前进
type ChainState struct {
	mtx sync.RWMutex

	numFinalBlockPerPOW uint64

	dsBlocks   []*types.DSBlock
	txBlocks   []*types.TxBlock
	blockLinks []BlockLink

	// 随机数种子链，每次提交区块后更新
	dsBlockRand []byte
	txBlockRand []byte

	currentEpochNum        uint64
	latestActiveDSBlockNum uint64

	logger log.Logger
}

// AppendDS 把DS block追加到链尾
// 区块号不连续时返回ErrChainGap，由caller决定是否继续
func (cs *ChainState) AppendDS(block *types.DSBlock) error {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if len(cs.dsBlocks) > 0 {
		tail := cs.dsBlocks[len(cs.dsBlocks)-1]
		if block.Header.BlockNum != tail.Header.BlockNum+1 {
			return errors.Wrapf(ErrChainGap, "ds tail %d, incoming %d",
				tail.Header.BlockNum, block.Header.BlockNum)
		}
	}

	cs.dsBlocks = append(cs.dsBlocks, block)
	return nil
}

// AppendTx 把final block追加到TX链尾，epoch计数由caller单独前进
func (cs *ChainState) AppendTx(block *types.TxBlock) error {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if len(cs.txBlocks) > 0 {
		tail := cs.txBlocks[len(cs.txBlocks)-1]
		if block.Header.BlockNum != tail.Header.BlockNum+1 {
			return errors.Wrapf(ErrChainGap, "tx tail %d, incoming %d",
				tail.Header.BlockNum, block.Header.BlockNum)
		}
	}

	cs.txBlocks = append(cs.txBlocks, block)
	return nil
}

// AppendLink 在block link链上登记一个DS/VC区块
func (cs *ChainState) AppendLink(index uint64, dsEpochNo uint64, kind BlockKind, blockHash []byte) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	cs.blockLinks = append(cs.blockLinks, BlockLink{
		Index:     index,
		DSEpochNo: dsEpochNo,
		Kind:      kind,
		BlockHash: blockHash,
	})
}

func (cs *ChainState) LatestLinkIndex() uint64 {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()

	if len(cs.blockLinks) == 0 {
		return 0
	}
	return cs.blockLinks[len(cs.blockLinks)-1].Index
}

func (cs *ChainState) TailDS() *types.DSBlock {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()

	if len(cs.dsBlocks) == 0 {
		return nil
	}
	return cs.dsBlocks[len(cs.dsBlocks)-1]
}

func (cs *ChainState) TailTx() *types.TxBlock {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()

	if len(cs.txBlocks) == 0 {
		return nil
	}
	return cs.txBlocks[len(cs.txBlocks)-1]
}

// TailDSNum DS链尾区块号，空链返回0
func (cs *ChainState) TailDSNum() uint64 {
	if tail := cs.TailDS(); tail != nil {
		return tail.Header.BlockNum
	}
	return 0
}

func (cs *ChainState) TailTxNum() uint64 {
	if tail := cs.TailTx(); tail != nil {
		return tail.Header.BlockNum
	}
	return 0
}

// IncreaseEpochNum final block提交后epoch前进1
func (cs *ChainState) IncreaseEpochNum() {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.currentEpochNum++
}

func (cs *ChainState) CurrentEpochNum() uint64 {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.currentEpochNum
}

// IsVacuousEpoch DS cycle的最后一个epoch，提交后要开新的PoW轮
func (cs *ChainState) IsVacuousEpoch() bool {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return (cs.currentEpochNum+1)%cs.numFinalBlockPerPOW == 0
}

// IsLatest VC block验证用 - vc记录的epoch必须是链上最新的
func (cs *ChainState) IsLatest(dsEpochNo uint64, epochNo uint64) bool {
	if dsEpochNo != cs.TailDSNum()+1 {
		return false
	}
	return epochNo == cs.CurrentEpochNum()
}

// UpdateDSBlockRand ds_block_rand = H(prev ∥ newBlockHash)
func (cs *ChainState) UpdateDSBlockRand() {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if len(cs.dsBlocks) == 0 {
		return
	}
	tail := cs.dsBlocks[len(cs.dsBlocks)-1]
	cs.dsBlockRand = hashutil.UpdateRand(cs.dsBlockRand, tail.Hash())
}

func (cs *ChainState) UpdateTxBlockRand() {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if len(cs.txBlocks) == 0 {
		return
	}
	tail := cs.txBlocks[len(cs.txBlocks)-1]
	cs.txBlockRand = hashutil.UpdateRand(cs.txBlockRand, tail.Hash())
}

func (cs *ChainState) DSBlockRand() []byte {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.dsBlockRand
}

func (cs *ChainState) TxBlockRand() []byte {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.txBlockRand
}

// SetLatestActiveDSBlockNum 单调递增的metadata，回退的更新会被忽略
func (cs *ChainState) SetLatestActiveDSBlockNum(num uint64) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if num < cs.latestActiveDSBlockNum {
		cs.logger.Error("latest active ds block num went backwards",
			"current", cs.latestActiveDSBlockNum, "incoming", num)
		return
	}
	cs.latestActiveDSBlockNum = num
}

func (cs *ChainState) LatestActiveDSBlockNum() uint64 {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.latestActiveDSBlockNum
}
