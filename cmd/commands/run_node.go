package commands

import (
	"errors"
	"net/http"
	"path/filepath"

	"dschain/committee"
	"dschain/directory"
	"dschain/libs/metric"
	dsnode "dschain/node"
	"dschain/privval"
	"dschain/rpc"
	"dschain/state"
	"dschain/store"
	"dschain/types"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
)

// NewRunNodeCmd 启动一个DS节点
// 共识原语和PoW子系统在启动后通过directory的hook接入
func NewRunNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run-node",
		Aliases: []string{"run_node", "start"},
		Short:   "Run the dschain node",
		RunE:    runNode,
	}
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	runtimeCfg, err := ParseRuntimeConfig()
	if err != nil {
		return err
	}

	// 节点身份
	keyFile := filepath.Join(config.RootDir, "config", "schnorr_key.json")
	pv := privval.LoadOrGenFilePV(keyFile)
	selfKey := pv.GetPubKey()

	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return err
	}

	// 初始委员会
	committeeFile := filepath.Join(config.RootDir, "config", "committee.json")
	gen, err := LoadCommitteeGenesis(committeeFile)
	if err != nil {
		return err
	}

	registry := committee.NewRegistry(types.NewCommittee(gen.Members), logger.With("module", "committee"))
	chainState := state.NewChainState(runtimeCfg.NumFinalBlockPerPOW, logger.With("module", "state"))
	blockStore := store.NewBlockStore(runtimeCfg.DBName, filepath.Join(config.RootDir, runtimeCfg.DBDir),
		logger.With("module", "store"))
	if blockStore == nil {
		return errors.New("failed to open block store")
	}

	transport := dsnode.NewSwitchTransport(logger.With("module", "transport"))

	// 本节点在委员会里的初始位置
	myID := -1
	selfPeer := types.Peer{}
	for idx, member := range gen.Members {
		if member.PubKey.Equals(selfKey) {
			myID = idx
			selfPeer = member.Peer
			break
		}
	}
	mode := committee.BackupDS
	if myID < 0 {
		mode = committee.Idle
		myID = 0
	} else if myID == 0 {
		mode = committee.PrimaryDS
	}

	nd := dsnode.NewNode(runtimeCfg, selfKey, selfPeer, chainState, registry, blockStore, transport)
	nd.SetLogger(logger.With("module", "node"))

	metrics := metric.NewMetricSet()
	metrics.SetMetrics("ds_block_committed", metric.NewEpochCounter("ds_block_committed"))
	metrics.SetMetrics("final_block_committed", metric.NewEpochCounter("final_block_committed"))

	dirService := directory.NewDirectoryService(
		runtimeCfg, selfKey, selfPeer,
		chainState, registry, blockStore, state.NewMemAccountStore(),
		transport, nd,
		directory.SetLookups(gen.Lookups),
		directory.SetMode(mode),
		directory.SetConsensusMyID(uint16(myID)),
		directory.SetMetrics(metrics),
	)
	dirService.SetLogger(logger.With("module", "directory"))

	reactor := dsnode.NewReactor(nd, dirService, dsnode.SetPeerTracker(transport))
	host, err := dsnode.NewHost(config, nodeKey, reactor, logger)
	if err != nil {
		return err
	}

	if err := host.Start(); err != nil {
		return err
	}
	if err := dirService.Start(); err != nil {
		return err
	}
	if err := nd.Start(); err != nil {
		return err
	}

	// rpc
	rpc.SetEnvironment(&rpc.Environment{
		Chain:     chainState,
		Registry:  registry,
		Directory: dirService,
		MetricSet: metrics,
	})
	rpcLogger := logger.With("module", "rpc")
	serverCfg := rpcserver.DefaultConfig()
	listener, err := rpcserver.Listen(config.RPC.ListenAddress, serverCfg)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)
	go func() {
		if err := rpcserver.Serve(listener, mux, rpcLogger, serverCfg); err != nil {
			rpcLogger.Error("rpc server stopped", "err", err)
		}
	}()

	// Stop upon receiving SIGTERM or CTRL-C.
	tmos.TrapSignal(logger, func() {
		_ = nd.Stop()
		_ = dirService.Stop()
		_ = host.Stop()
		_ = blockStore.Close()
	})

	// Run forever.
	select {}
}
