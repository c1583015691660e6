package messenger

import (
	"dschain/types"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// 消息信封的前两个字节 - 通道类型和指令
const (
	MsgTypeNode = byte(0x01)

	InstrDSBlock    = byte(0x06)
	InstrFinalBlock = byte(0x07)
	InstrVCBlock    = byte(0x0A)
)

// MessageOffsetBody 信封头之后payload的偏移
const MessageOffsetBody = 2

var (
	ErrCodecFail = errors.New("messenger codec failed")
)

// NodeDSBlock DSBLOCK信封的payload
type NodeDSBlock struct {
	ShardID        uint32             `json:"shard_id"`
	DSBlock        *types.DSBlock     `json:"ds_block"`
	WinnerPeer     types.Peer         `json:"winner_peer"`
	Shards         types.DequeOfShard `json:"shards"`
	DSReceivers    []types.Peer       `json:"ds_receivers"`
	ShardReceivers [][]types.Peer     `json:"shard_receivers"`
	ShardSenders   [][]types.Peer     `json:"shard_senders"`
}

// NodeFinalBlock FINALBLOCK信封的payload
type NodeFinalBlock struct {
	ShardID     uint32         `json:"shard_id"`
	DSBlockNum  uint64         `json:"ds_block_num"`
	ConsensusID uint32         `json:"consensus_id"`
	TxBlock     *types.TxBlock `json:"tx_block"`
	StateDelta  []byte         `json:"state_delta"`
}

// NodeVCBlock VCBLOCK信封的payload
type NodeVCBlock struct {
	VCBlock *types.VCBlock `json:"vc_block"`
}

func envelope(instr byte, payload interface{}) ([]byte, error) {
	bz, err := tmjson.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(ErrCodecFail, err.Error())
	}
	msg := make([]byte, 0, MessageOffsetBody+len(bz))
	msg = append(msg, MsgTypeNode, instr)
	msg = append(msg, bz...)
	return msg, nil
}

func unwrap(message []byte, instr byte, dst interface{}) error {
	if len(message) < MessageOffsetBody {
		return errors.Wrap(ErrCodecFail, "message too short")
	}
	if message[0] != MsgTypeNode || message[1] != instr {
		return errors.Wrapf(ErrCodecFail, "wrong envelope %x%x", message[0], message[1])
	}
	if err := tmjson.Unmarshal(message[MessageOffsetBody:], dst); err != nil {
		return errors.Wrap(ErrCodecFail, err.Error())
	}
	return nil
}

// SetNodeDSBlock 编码{NODE, DSBLOCK}消息
func SetNodeDSBlock(
	shardID uint32,
	block *types.DSBlock,
	winnerPeer types.Peer,
	shards types.DequeOfShard,
	dsReceivers []types.Peer,
	shardReceivers [][]types.Peer,
	shardSenders [][]types.Peer,
) ([]byte, error) {
	return envelope(InstrDSBlock, &NodeDSBlock{
		ShardID:        shardID,
		DSBlock:        block,
		WinnerPeer:     winnerPeer,
		Shards:         shards,
		DSReceivers:    dsReceivers,
		ShardReceivers: shardReceivers,
		ShardSenders:   shardSenders,
	})
}

func GetNodeDSBlock(message []byte) (*NodeDSBlock, error) {
	var payload NodeDSBlock
	if err := unwrap(message, InstrDSBlock, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SetNodeFinalBlock 编码{NODE, FINALBLOCK}消息
func SetNodeFinalBlock(
	shardID uint32,
	dsBlockNum uint64,
	consensusID uint32,
	block *types.TxBlock,
	stateDelta []byte,
) ([]byte, error) {
	return envelope(InstrFinalBlock, &NodeFinalBlock{
		ShardID:     shardID,
		DSBlockNum:  dsBlockNum,
		ConsensusID: consensusID,
		TxBlock:     block,
		StateDelta:  stateDelta,
	})
}

func GetNodeFinalBlock(message []byte) (*NodeFinalBlock, error) {
	var payload NodeFinalBlock
	if err := unwrap(message, InstrFinalBlock, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SetNodeVCBlock 编码{NODE, VCBLOCK}消息
func SetNodeVCBlock(block *types.VCBlock) ([]byte, error) {
	return envelope(InstrVCBlock, &NodeVCBlock{VCBlock: block})
}

func GetNodeVCBlock(message []byte) (*NodeVCBlock, error) {
	var payload NodeVCBlock
	if err := unwrap(message, InstrVCBlock, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Instruction 读信封的指令字节
func Instruction(message []byte) (byte, error) {
	if len(message) < MessageOffsetBody {
		return 0, errors.Wrap(ErrCodecFail, "message too short")
	}
	if message[0] != MsgTypeNode {
		return 0, errors.Wrapf(ErrCodecFail, "unknown message type %x", message[0])
	}
	return message[1], nil
}

// GetDSCommitteeHash 委员会hash，VC block验证时和header.committee_hash比对
func GetDSCommitteeHash(committee *types.Committee) []byte {
	return committee.Hash()
}
