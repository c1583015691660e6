package types

import (
	"bytes"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	kyber "go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
)

// Suite 整个模块使用的schnorr签名群
var Suite = edwards25519.NewBlakeSHA256Ed25519()

// PubKey 节点的schnorr公钥
// 内部只保存编码后的字节，需要做聚合运算时再还原成群上的点
type PubKey struct {
	Data tmbytes.HexBytes `json:"data"`
}

func NewPubKey(p kyber.Point) PubKey {
	bz, err := p.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PubKey{Data: bz}
}

// Point 将公钥还原成群上的点
func (pk PubKey) Point() (kyber.Point, error) {
	p := Suite.Point()
	if err := p.UnmarshalBinary(pk.Data); err != nil {
		return nil, err
	}
	return p, nil
}

func (pk PubKey) Equals(other PubKey) bool {
	return bytes.Equal(pk.Data, other.Data)
}

func (pk PubKey) IsEmpty() bool {
	return len(pk.Data) == 0
}

// MapKey 公钥作为map key时的规范形式
func (pk PubKey) MapKey() string {
	return pk.Data.String()
}

func (pk PubKey) String() string {
	return pk.Data.String()
}
