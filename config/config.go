package config

import (
	"time"

	"github.com/spf13/viper"
)

// RuntimeConfig 启动时注入的运行参数
// 不用进程级全局变量，测试可以用不同配置实例化多个core
type RuntimeConfig struct {
	// committee / multicast
	DSMulticastClusterSize int `mapstructure:"ds_multicast_cluster_size"`
	CommSize               int `mapstructure:"comm_size"`
	TxSharingClusterSize   int `mapstructure:"tx_sharing_cluster_size"`

	// 超时参数
	MicroblockTimeout                  time.Duration `mapstructure:"microblock_timeout"`
	DSMicroblockConsensusObjectTimeout time.Duration `mapstructure:"ds_microblock_consensus_object_timeout"`
	ConsensusObjectTimeout             time.Duration `mapstructure:"consensus_object_timeout"`
	ConsensusMsgOrderBlockWindow       time.Duration `mapstructure:"consensus_msg_order_block_window"`
	FetchingMissingDataTimeout         time.Duration `mapstructure:"fetching_missing_data_timeout"`
	ViewChangeTime                     time.Duration `mapstructure:"viewchange_time"`
	ViewChangePrecheckTime             time.Duration `mapstructure:"viewchange_precheck_time"`
	ViewChangeExtraTime                time.Duration `mapstructure:"viewchange_extra_time"`

	// 转发参数
	NumDSBlockGossipReceiversPerShard  int `mapstructure:"num_dsblock_gossip_receivers_per_shard"`
	NumGossipReceivers                 int `mapstructure:"num_gossip_receivers"`
	NumForwardedBlockReceiversPerShard int `mapstructure:"num_forwarded_block_receivers_per_shard"`
	NumDSElection                      int `mapstructure:"num_ds_election"`
	NumOfTreebasedChildClusters        int `mapstructure:"num_of_treebased_child_clusters"`

	// epoch参数 - 一个DS cycle里的final block数，最后一个epoch是vacuous
	NumFinalBlockPerPOW uint64 `mapstructure:"num_final_block_per_pow"`

	// 模式开关
	LookupNodeMode            bool `mapstructure:"lookup_node_mode"`
	GuardMode                 bool `mapstructure:"guard_mode"`
	BroadcastGossipMode       bool `mapstructure:"broadcast_gossip_mode"`
	BroadcastTreebasedCluster bool `mapstructure:"broadcast_treebased_cluster_mode"`
	TestNetMode               bool `mapstructure:"test_net_mode"`

	// 升级调度 - DS链tail为UpgradeDS-1的vacuous epoch里触发replace node(0表示不调度)
	UpgradeDS uint64 `mapstructure:"upgrade_ds"`

	// 存储
	DBDir  string `mapstructure:"db_dir"`
	DBName string `mapstructure:"db_name"`
}

func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		DSMulticastClusterSize: 10,
		CommSize:               40,
		TxSharingClusterSize:   20,

		MicroblockTimeout:                  30 * time.Second,
		DSMicroblockConsensusObjectTimeout: 30 * time.Second,
		ConsensusObjectTimeout:             10 * time.Second,
		ConsensusMsgOrderBlockWindow:       60 * time.Second,
		FetchingMissingDataTimeout:         20 * time.Second,
		ViewChangeTime:                     60 * time.Second,
		ViewChangePrecheckTime:             10 * time.Second,
		ViewChangeExtraTime:                5 * time.Second,

		NumDSBlockGossipReceiversPerShard:  2,
		NumGossipReceivers:                 4,
		NumForwardedBlockReceiversPerShard: 3,
		NumDSElection:                      2,
		NumOfTreebasedChildClusters:        3,

		NumFinalBlockPerPOW: 100,

		DBDir:  "data",
		DBName: "dschain",
	}
}

// TestRuntimeConfig 测试用的短超时配置
func TestRuntimeConfig() *RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	cfg.DSMulticastClusterSize = 3
	cfg.CommSize = 4
	cfg.TxSharingClusterSize = 2
	cfg.MicroblockTimeout = 50 * time.Millisecond
	cfg.DSMicroblockConsensusObjectTimeout = 50 * time.Millisecond
	cfg.ConsensusObjectTimeout = 50 * time.Millisecond
	cfg.ConsensusMsgOrderBlockWindow = 100 * time.Millisecond
	cfg.FetchingMissingDataTimeout = 50 * time.Millisecond
	cfg.NumFinalBlockPerPOW = 3
	cfg.DBName = "dschain_test"
	return cfg
}

// LoadRuntimeConfig 从viper读配置，缺省项落到默认值
func LoadRuntimeConfig(v *viper.Viper) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
