package privval

import (
	"io/ioutil"

	"dschain/crypto/multisig"
	"dschain/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"
	kyber "go.dedis.ch/kyber/v3"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of the node identity.
type FilePVKey struct {
	PubKey  types.PubKey     `json:"pub_key"`
	PrivKey tmbytes.HexBytes `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save node key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FilePV 落盘的schnorr节点身份
// DS委员会成员用它给共识消息和区块签名
type FilePV struct {
	Key FilePVKey
}

// NewFilePV generates a new node identity from the given scalar and path.
func NewFilePV(privKey kyber.Scalar, keyFilePath string) *FilePV {
	privBytes, err := privKey.MarshalBinary()
	if err != nil {
		panic(err)
	}
	pub := types.Suite.Point().Mul(privKey, nil)
	return &FilePV{
		Key: FilePVKey{
			PubKey:   types.NewPubKey(pub),
			PrivKey:  privBytes,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV 随机生成一个新的节点身份
func GenFilePV(keyFilePath string) *FilePV {
	priv := types.Suite.Scalar().Pick(types.Suite.RandomStream())
	return NewFilePV(priv, keyFilePath)
}

// LoadFilePV loads a FilePV from the given path.
func LoadFilePV(keyFilePath string) *FilePV {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}

	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		tmos.Exit("error reading node key from " + keyFilePath + ": " + err.Error())
	}

	pvKey.filePath = keyFilePath
	return &FilePV{Key: pvKey}
}

// LoadOrGenFilePV loads a FilePV from the given path or generates one.
func LoadOrGenFilePV(keyFilePath string) *FilePV {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv := GenFilePV(keyFilePath)
	pv.Save()
	return pv
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

func (pv *FilePV) GetPubKey() types.PubKey {
	return pv.Key.PubKey
}

// PrivKeyScalar 还原成群上的标量
func (pv *FilePV) PrivKeyScalar() (kyber.Scalar, error) {
	s := types.Suite.Scalar()
	if err := s.UnmarshalBinary(pv.Key.PrivKey); err != nil {
		return nil, err
	}
	return s, nil
}

// SignMessage schnorr签名
func (pv *FilePV) SignMessage(message []byte) ([]byte, error) {
	priv, err := pv.PrivKeyScalar()
	if err != nil {
		return nil, err
	}
	return multisig.Sign(priv, message)
}
