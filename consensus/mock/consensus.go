package mock

import (
	"sync"

	"dschain/consensus"
	"dschain/types"
)

// Object 可编排的共识对象，测试dispatcher和post-processor用
type Object struct {
	mtx sync.Mutex

	// NextState Process后进入的状态
	NextState consensus.State
	// NextErrorCode ERROR时的错误码
	NextErrorCode consensus.ErrorCode
	// Cosigs DONE时挂到区块上的签名
	Cosigs types.CoSignatures

	// ConsensusID GetConsensusID的返回值
	ConsensusID uint32

	// CanProcessResult false时模拟乱序消息
	CanProcessResult bool

	state     consensus.State
	processed [][]byte
	recovered []consensus.State
}

func NewObject(consensusID uint32) *Object {
	return &Object{
		NextState:        consensus.Done,
		ConsensusID:      consensusID,
		CanProcessResult: true,
	}
}

func (o *Object) Process(message []byte, offset int, from types.Peer) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.processed = append(o.processed, message)
	o.state = o.NextState
	return nil
}

func (o *Object) CanProcess(message []byte, offset int) bool {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.CanProcessResult
}

func (o *Object) GetConsensusID(message []byte, offset int) (uint32, error) {
	return o.ConsensusID, nil
}

func (o *Object) Recover(state consensus.State) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.recovered = append(o.recovered, state)
	o.state = state
}

func (o *Object) State() consensus.State {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.state
}

func (o *Object) ErrorCode() consensus.ErrorCode {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.state == consensus.Error {
		return o.NextErrorCode
	}
	return consensus.NoError
}

func (o *Object) CoSignatures() types.CoSignatures {
	return o.Cosigs
}

// Processed 已处理的消息列表
func (o *Object) Processed() [][]byte {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	out := make([][]byte, len(o.processed))
	copy(out, o.processed)
	return out
}

// Recovered Recover被调用的历史
func (o *Object) Recovered() []consensus.State {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	out := make([]consensus.State, len(o.recovered))
	copy(out, o.recovered)
	return out
}
