package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// ViewChangeState 发起view change时所处的共识阶段
type ViewChangeState uint8

const (
	ViewChangeNone       = ViewChangeState(0)
	ViewChangeDSBlock    = ViewChangeState(1) // DS block共识阶段的VC，和DS block一起走另外的路径
	ViewChangeFinalBlock = ViewChangeState(2)
)

func (s ViewChangeState) String() string {
	switch s {
	case ViewChangeNone:
		return "None"
	case ViewChangeDSBlock:
		return "DSBlock"
	case ViewChangeFinalBlock:
		return "FinalBlock"
	default:
		return "Unknown"
	}
}

// IsDSBlockVCState DS block阶段的VC不能被单独处理
func (s ViewChangeState) IsDSBlockVCState() bool {
	return s == ViewChangeDSBlock
}

// VCBlockHeader 记录leader替换证据的区块头
type VCBlockHeader struct {
	VCDSEpochNo     uint64           `json:"vc_ds_epoch_no"`
	VCEpochNo       uint64           `json:"vc_epoch_no"`
	ViewChangeState ViewChangeState  `json:"view_change_state"`
	FaultyLeaders   []PairOfNode     `json:"faulty_leaders"`
	CommitteeHash   tmbytes.HexBytes `json:"committee_hash"`
	Timestamp       int64            `json:"timestamp"`
}

func (h *VCBlockHeader) Serialize() []byte {
	bz, err := tmjson.Marshal(h)
	if err != nil {
		panic(err)
	}
	return bz
}

type VCBlock struct {
	Header    VCBlockHeader    `json:"header"`
	Cosigs    CoSignatures     `json:"cosigs"`
	BlockHash tmbytes.HexBytes `json:"block_hash"`
}

// Hash 重新计算区块头的hash，用来校验BlockHash字段
func (b *VCBlock) Hash() tmbytes.HexBytes {
	return tmhash.Sum(b.Header.Serialize())
}

func (b *VCBlock) Serialize() ([]byte, error) {
	return tmjson.Marshal(b)
}

func (b *VCBlock) ValidateBasic() error {
	if b == nil {
		return errors.New("nil vc block")
	}
	if len(b.BlockHash) == 0 {
		return errors.New("vc block has no block hash")
	}
	return nil
}

func (b *VCBlock) String() string {
	return fmt.Sprintf("VCBlock{ds_epoch:%d epoch:%d state:%v faulty:%d}",
		b.Header.VCDSEpochNo, b.Header.VCEpochNo, b.Header.ViewChangeState,
		len(b.Header.FaultyLeaders))
}
