package state

import (
	"sync"
)

// AccountStore 账户状态库的外部契约
// 本core不会跨account store操作持有内部锁
type AccountStore interface {
	// GetSerializedDelta 当前epoch的状态增量的序列化
	GetSerializedDelta() []byte

	// MoveUpdatesToDisk vacuous epoch提交后把账户更新刷盘
	MoveUpdatesToDisk() error

	// InitTemp 重置临时层
	InitTemp()

	// InitReversibles 重置可回滚层
	InitReversibles()
}

// memAccountStore 测试和单机运行用的内存实现
type memAccountStore struct {
	mtx sync.Mutex

	delta   []byte
	flushed int
}

func NewMemAccountStore() AccountStore {
	return &memAccountStore{}
}

func (as *memAccountStore) GetSerializedDelta() []byte {
	as.mtx.Lock()
	defer as.mtx.Unlock()
	return as.delta
}

// SetDelta 测试注入状态增量
func (as *memAccountStore) SetDelta(delta []byte) {
	as.mtx.Lock()
	defer as.mtx.Unlock()
	as.delta = delta
}

func (as *memAccountStore) MoveUpdatesToDisk() error {
	as.mtx.Lock()
	defer as.mtx.Unlock()
	as.flushed++
	as.delta = nil
	return nil
}

func (as *memAccountStore) InitTemp() {
	as.mtx.Lock()
	defer as.mtx.Unlock()
	as.delta = nil
}

func (as *memAccountStore) InitReversibles() {}
