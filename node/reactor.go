package node

import (
	"fmt"

	"dschain/messenger"
	"dschain/types"

	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/p2p"
)

const (
	// BlockChannel 区块分发信封 - DSBLOCK/FINALBLOCK/VCBLOCK
	BlockChannel = byte(0x40)
	// DSConsensusChannel DS block共识消息
	DSConsensusChannel = byte(0x41)
	// FinalConsensusChannel final block共识消息
	FinalConsensusChannel = byte(0x42)

	maxMsgSize = 1048576 // 1MB
)

// ConsensusDispatcher directory dispatcher的入口
type ConsensusDispatcher interface {
	ProcessDSBlockConsensus(message []byte, offset int, from types.Peer) bool
	ProcessFinalBlockConsensus(message []byte, offset int, from types.Peer) bool
}

// Reactor 把网络消息按通道分发给node和directory
type Reactor struct {
	p2p.BaseReactor

	peers *cmap.CMap

	node       *Node
	dispatcher ConsensusDispatcher
	tracker    *SwitchTransport
}

type ReactorOption func(*Reactor)

func NewReactor(node *Node, dispatcher ConsensusDispatcher, options ...ReactorOption) *Reactor {
	r := &Reactor{
		peers:      cmap.NewCMap(),
		node:       node,
		dispatcher: dispatcher,
	}
	r.BaseReactor = *p2p.NewBaseReactor("Directory", r)

	for _, option := range options {
		option(r)
	}
	return r
}

func (r *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                 BlockChannel,
			Priority:           10,
			SendQueueCapacity:  100,
			RecvBufferCapacity: maxMsgSize,
		},
		{
			ID:                 DSConsensusChannel,
			Priority:           5,
			SendQueueCapacity:  100,
			RecvBufferCapacity: maxMsgSize,
		},
		{
			ID:                 FinalConsensusChannel,
			Priority:           5,
			SendQueueCapacity:  100,
			RecvBufferCapacity: maxMsgSize,
		},
	}
}

// SetPeerTracker reactor把连上的peer喂给SwitchTransport
func SetPeerTracker(tracker *SwitchTransport) ReactorOption {
	return func(r *Reactor) { r.tracker = tracker }
}

func (r *Reactor) AddPeer(peer p2p.Peer) {
	r.peers.Set(string(peer.ID()), peer)
	if r.tracker != nil {
		r.tracker.TrackPeer(peer)
	}
}

func (r *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	r.peers.Delete(string(peer.ID()))
	if r.tracker != nil {
		r.tracker.UntrackPeer(peer)
	}
}

// peerAddr p2p peer还原成types.Peer
func peerAddr(src p2p.Peer) types.Peer {
	addr := src.SocketAddr()
	if addr == nil {
		return types.Peer{}
	}
	return types.NewPeer(addr.IP.String(), uint32(addr.Port))
}

func (r *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !r.IsRunning() {
		r.Logger.Debug("Receive", "src", src, "chID", chID)
		return
	}

	from := peerAddr(src)

	switch chID {
	case DSConsensusChannel:
		r.dispatcher.ProcessDSBlockConsensus(msgBytes, 0, from)

	case FinalConsensusChannel:
		r.dispatcher.ProcessFinalBlockConsensus(msgBytes, 0, from)

	case BlockChannel:
		instr, err := messenger.Instruction(msgBytes)
		if err != nil {
			r.Logger.Error("bad envelope", "err", err, "from", from)
			return
		}

		switch instr {
		case messenger.InstrVCBlock:
			r.node.ProcessVCBlock(msgBytes, from)
		case messenger.InstrDSBlock:
			r.node.ProcessDSBlockMessage(msgBytes, from)
		case messenger.InstrFinalBlock:
			r.node.ProcessFinalBlockMessage(msgBytes, from)
		default:
			r.Logger.Error(fmt.Sprintf("unknown instruction %X", instr))
		}

	default:
		r.Logger.Error(fmt.Sprintf("unknown chID %X", chID))
	}
}
