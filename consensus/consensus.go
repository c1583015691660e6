package consensus

import (
	"dschain/types"
)

// State BFT共识对象的状态
type State int

const (
	Initial = State(iota)
	AnnounceDone
	CommitDone
	ChallengeDone
	ResponseDone
	CollectiveSigDone
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case AnnounceDone:
		return "ANNOUNCE_DONE"
	case CommitDone:
		return "COMMIT_DONE"
	case ChallengeDone:
		return "CHALLENGE_DONE"
	case ResponseDone:
		return "RESPONSE_DONE"
	case CollectiveSigDone:
		return "COLLECTIVESIG_DONE"
	case Done:
		return "DONE"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ErrorCode 共识失败的具体原因，决定恢复路径
type ErrorCode int

const (
	NoError = ErrorCode(iota)
	GenericError
	FinalblockMissingMicroblocks
	MissingTxn
)

// Object schnorr多签BFT共识轮的外部契约
// commit/challenge/response轮本身在本core之外实现
type Object interface {
	// Process 处理一条共识消息，处理后通过State()观察结果
	Process(message []byte, offset int, from types.Peer) error

	// CanProcess 乱序消息重组 - 判断消息当前是否可以处理
	CanProcess(message []byte, offset int) bool

	// GetConsensusID 从消息里解出consensus id
	GetConsensusID(message []byte, offset int) (uint32, error)

	// Recover 把共识对象重置到指定状态后重跑
	Recover(state State)

	State() State
	ErrorCode() ErrorCode

	// CoSignatures DONE后可取的两轮聚合签名
	CoSignatures() types.CoSignatures
}

// NumForConsensus BFT阈值 - 至少2n/3+1个签名
func NumForConsensus(n int) int {
	return n*2/3 + 1
}
