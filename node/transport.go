package node

import (
	"fmt"
	"sync"

	"dschain/types"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
)

// SwitchTransport network.Transport的p2p实现
// reactor把连上的peer登记进来，按"ip:port"索引；没连上的目标只记log跳过
type SwitchTransport struct {
	mtx sync.RWMutex

	byAddr map[string]p2p.Peer

	rumorPeers []types.Peer

	logger log.Logger
}

func NewSwitchTransport(logger log.Logger) *SwitchTransport {
	return &SwitchTransport{
		byAddr: make(map[string]p2p.Peer),
		logger: logger,
	}
}

// TrackPeer reactor的AddPeer把连上的peer登记进来
func (st *SwitchTransport) TrackPeer(peer p2p.Peer) {
	addr := peer.SocketAddr()
	if addr == nil {
		return
	}
	st.mtx.Lock()
	st.byAddr[fmt.Sprintf("%s:%d", addr.IP, addr.Port)] = peer
	st.mtx.Unlock()
}

func (st *SwitchTransport) UntrackPeer(peer p2p.Peer) {
	addr := peer.SocketAddr()
	if addr == nil {
		return
	}
	st.mtx.Lock()
	delete(st.byAddr, fmt.Sprintf("%s:%d", addr.IP, addr.Port))
	st.mtx.Unlock()
}

func (st *SwitchTransport) lookup(peer types.Peer) (p2p.Peer, bool) {
	st.mtx.RLock()
	defer st.mtx.RUnlock()
	p, ok := st.byAddr[fmt.Sprintf("%s:%d", peer.IP, peer.Port)]
	return p, ok
}

func (st *SwitchTransport) SendBroadcast(peers []types.Peer, message []byte) {
	for _, peer := range peers {
		st.SendUnicast(peer, message)
	}
}

func (st *SwitchTransport) SendUnicast(peer types.Peer, message []byte) {
	p, ok := st.lookup(peer)
	if !ok {
		st.logger.Debug("peer not connected, skip send", "peer", peer)
		return
	}
	p.Send(BlockChannel, message)
}

func (st *SwitchTransport) SendRumorToForeign(peers []types.Peer, message []byte) {
	st.SendBroadcast(peers, message)
}

func (st *SwitchTransport) InitRumorManager(peers []types.Peer) {
	st.mtx.Lock()
	st.rumorPeers = peers
	st.mtx.Unlock()
	st.logger.Info("rumor manager reinitialized", "peers", len(peers))
}
