package privval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"dschain/crypto/multisig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenLoadFilePV(t *testing.T) {
	dir, err := ioutil.TempDir("", "privval_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	keyFile := filepath.Join(dir, "node_key.json")

	pv := GenFilePV(keyFile)
	pv.Save()

	loaded := LoadFilePV(keyFile)
	assert.True(t, pv.GetPubKey().Equals(loaded.GetPubKey()))
	assert.Equal(t, pv.Key.PrivKey, loaded.Key.PrivKey)

	// 签名能在自己的公钥下验证
	msg := []byte("ds block header")
	sig, err := loaded.SignMessage(msg)
	require.NoError(t, err)

	point, err := loaded.GetPubKey().Point()
	require.NoError(t, err)
	assert.NoError(t, multisig.Verify(msg, sig, point))
}

func TestLoadOrGenFilePV(t *testing.T) {
	dir, err := ioutil.TempDir("", "privval_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	keyFile := filepath.Join(dir, "node_key.json")

	pv1 := LoadOrGenFilePV(keyFile)
	// 第二次load要拿到同一个身份
	pv2 := LoadOrGenFilePV(keyFile)
	assert.True(t, pv1.GetPubKey().Equals(pv2.GetPubKey()))
}
