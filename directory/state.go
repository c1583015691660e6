package directory

// NodeState DS节点的epoch状态机
type NodeState int

const (
	PowSubmission = NodeState(iota)
	DSBlockConsensusPrep
	DSBlockConsensus
	MicroblockSubmission
	FinalblockConsensusPrep
	FinalblockConsensus
	ViewChangeConsensus
)

func (s NodeState) String() string {
	switch s {
	case PowSubmission:
		return "POW_SUBMISSION"
	case DSBlockConsensusPrep:
		return "DSBLOCK_CONSENSUS_PREP"
	case DSBlockConsensus:
		return "DSBLOCK_CONSENSUS"
	case MicroblockSubmission:
		return "MICROBLOCK_SUBMISSION"
	case FinalblockConsensusPrep:
		return "FINALBLOCK_CONSENSUS_PREP"
	case FinalblockConsensus:
		return "FINALBLOCK_CONSENSUS"
	case ViewChangeConsensus:
		return "VIEWCHANGE_CONSENSUS"
	default:
		return "UNKNOWN"
	}
}

// SyncType 节点的同步模式，非NoSync时所有handler直接放弃处理
type SyncType int

const (
	NoSync = SyncType(0)
	Rejoin = SyncType(1)
)

// isDSBlockPreConsensusState DS block共识消息到早了要等的状态
func isDSBlockPreConsensusState(s NodeState) bool {
	return s == PowSubmission || s == DSBlockConsensusPrep || s == ViewChangeConsensus
}

// isFinalBlockPreConsensusState final block共识消息可以buffer的状态
func isFinalBlockPreConsensusState(s NodeState) bool {
	return s == MicroblockSubmission || s == FinalblockConsensusPrep || s == ViewChangeConsensus
}
