package rpc

import (
	"errors"

	"dschain/types"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultStatus struct {
	CurrentEpochNum        uint64 `json:"current_epoch_num"`
	TailDSBlockNum         uint64 `json:"tail_ds_block_num"`
	TailTxBlockNum         uint64 `json:"tail_tx_block_num"`
	LatestActiveDSBlockNum uint64 `json:"latest_active_ds_block_num"`
	State                  string `json:"state"`
	Mode                   string `json:"mode"`
	ConsensusMyID          uint16 `json:"consensus_my_id"`
	ConsensusLeaderID      uint16 `json:"consensus_leader_id"`
}

// Status 链尾和节点身份
func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	if env == nil {
		return nil, errors.New("rpc environment not initialized")
	}

	return &ResultStatus{
		CurrentEpochNum:        env.Chain.CurrentEpochNum(),
		TailDSBlockNum:         env.Chain.TailDSNum(),
		TailTxBlockNum:         env.Chain.TailTxNum(),
		LatestActiveDSBlockNum: env.Chain.LatestActiveDSBlockNum(),
		State:                  env.Directory.State().String(),
		Mode:                   env.Directory.Mode().String(),
		ConsensusMyID:          env.Directory.ConsensusMyID(),
		ConsensusLeaderID:      env.Directory.ConsensusLeaderID(),
	}, nil
}

type ResultCommittee struct {
	Size    int                `json:"size"`
	Members []types.PairOfNode `json:"members"`
}

// Committee 当前DS委员会
func Committee(ctx *rpctypes.Context) (*ResultCommittee, error) {
	if env == nil {
		return nil, errors.New("rpc environment not initialized")
	}

	comm := env.Registry.Committee()
	return &ResultCommittee{Size: comm.Size(), Members: comm.Members}, nil
}

type ResultMetrics struct {
	JSON string `json:"json"`
}

// Metrics 提交路径上的计数器，整体序列化成一个JSON串
func Metrics(ctx *rpctypes.Context) (*ResultMetrics, error) {
	if env == nil || env.MetricSet == nil {
		return nil, errors.New("metrics not initialized")
	}

	items := make(map[string]string)
	for _, label := range env.MetricSet.GetAllLabels() {
		if item := env.MetricSet.GetMetrics(label); item != nil {
			items[label] = item.JSONString()
		}
	}

	bz, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	return &ResultMetrics{JSON: string(bz)}, nil
}
