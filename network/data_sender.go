package network

import (
	"dschain/committee"
	"dschain/config"
	"dschain/types"

	"github.com/tendermint/tendermint/libs/log"
)

// ComposeMessageFn 组装要分发的消息
type ComposeMessageFn func() ([]byte, error)

// SendToLookupFn lookup节点的发送回调
type SendToLookupFn func(lookups []types.Peer, message []byte)

// SendToShardFn 分片区间的发送回调
type SendToShardFn func(message []byte, shards types.DequeOfShard, shardsLo, shardsHi int)

func NewDataSender(cfg *config.RuntimeConfig, transport Transport, logger log.Logger) *DataSender {
	return &DataSender{cfg: cfg, transport: transport, logger: logger}
}

// DataSender final block的统一分发器
// 按multicast cluster分配决定本节点要发给哪些目标
type DataSender struct {
	cfg       *config.RuntimeConfig
	transport Transport
	logger    log.Logger
}

// SendDataToOthers 向DS委员会、分片和lookup节点分发区块
func (ds *DataSender) SendDataToOthers(
	myID uint16,
	comm *types.Committee,
	shards types.DequeOfShard,
	lookups []types.Peer,
	compose ComposeMessageFn,
	sendToLookup SendToLookupFn,
	sendToShard SendToShardFn,
) error {
	message, err := compose()
	if err != nil {
		ds.logger.Error("compose message failed", "err", err)
		return err
	}

	// lookup发送cohort - 和DS block的send窗口一致
	lo := uint16(ds.cfg.CommSize / 4)
	hi := lo + uint16(ds.cfg.TxSharingClusterSize)
	if lo < myID && myID < hi && sendToLookup != nil {
		sendToLookup(lookups, message)
	}

	mc := committee.PartitionShards(comm.Size(), len(shards), int(myID), ds.cfg.DSMulticastClusterSize)
	if mc.ShouldSend(len(shards)) && sendToShard != nil {
		sendToShard(message, shards, mc.ShardsLo, mc.ShardsHi)
	}

	return nil
}

// Transport 暴露底层传输给回调使用
func (ds *DataSender) Transport() Transport {
	return ds.transport
}
