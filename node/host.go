package node

import (
	"fmt"
	"strings"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	"github.com/tendermint/tendermint/version"
)

// Host 节点的p2p宿主 - transport、switch和reactor的装配
type Host struct {
	service.BaseService

	// config
	config *cfg.Config

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// service
	reactor *Reactor
}

type HostOption func(*Host)

func createTransport(
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)

	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	reactor *Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("DIRECTORY", reactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func makeNodeInfo(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			8, // global
			11,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       "dschain",
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			BlockChannel,
			DSConsensusChannel,
			FinalConsensusChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress

	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}

	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

// NewHost 装配p2p宿主
func NewHost(config *cfg.Config, nodekey *p2p.NodeKey, reactor *Reactor, logger log.Logger, options ...HostOption) (*Host, error) {
	reactor.SetLogger(logger)

	p2pLogger := logger.With("module", "p2p")

	nodeinfo, err := makeNodeInfo(config, nodekey)
	if err != nil {
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(nodeinfo, nodekey)

	// Setup Switch.
	sw := createSwitch(
		config, transport, reactor, nodeinfo, nodekey, p2pLogger,
	)

	host := &Host{
		BaseService: service.BaseService{},
		config:      config,
		transport:   transport,
		sw:          sw,
		nodeInfo:    nodeinfo,
		nodeKey:     nodekey,
		reactor:     reactor,
	}

	host.BaseService = *service.NewBaseService(logger, "Host", host)
	for _, option := range options {
		option(host)
	}

	return host, nil
}

func (h *Host) Switch() *p2p.Switch {
	return h.sw
}

func (h *Host) NodeInfo() p2p.NodeInfo {
	return h.nodeInfo
}

func (h *Host) OnStart() error {
	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(h.nodeKey.ID(), h.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := h.transport.Listen(*addr); err != nil {
		return err
	}

	// start the Switch
	err = h.sw.Start()
	if err != nil {
		return err
	}

	h.Logger.Info("onstart", "peers", h.config.P2P.PersistentPeers)
	err = h.sw.DialPeersAsync(splitAndTrimEmpty(h.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	return nil
}

func (h *Host) OnStop() {
	h.sw.Stop()

	h.transport.Close()
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
