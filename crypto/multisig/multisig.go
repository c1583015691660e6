package multisig

import (
	"dschain/types"

	"github.com/pkg/errors"
	kyber "go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
)

// AggregatePubKeys 把bitmap里置1位置上的公钥聚合成一个点
// cosig验证用聚合后的公钥做一次普通的schnorr verify
func AggregatePubKeys(keys []types.PubKey) (kyber.Point, error) {
	if len(keys) == 0 {
		return nil, errors.New("no pubkeys to aggregate")
	}

	agg := types.Suite.Point().Null()
	for i, key := range keys {
		p, err := key.Point()
		if err != nil {
			return nil, errors.Wrapf(err, "pubkey #%d unmarshal failed", i)
		}
		agg = types.Suite.Point().Add(agg, p)
	}
	return agg, nil
}

// Verify 在聚合公钥下验证schnorr签名
func Verify(message []byte, signature []byte, aggregatedKey kyber.Point) error {
	return schnorr.Verify(types.Suite, aggregatedKey, message, signature)
}

// Sign 单个私钥的schnorr签名，测试和privval使用
func Sign(private kyber.Scalar, message []byte) ([]byte, error) {
	return schnorr.Sign(types.Suite, private, message)
}
