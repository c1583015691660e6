package commands

import (
	"path/filepath"

	"dschain/privval"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"
)

// InitFilesCmd 初始化一个新节点 - p2p key、schnorr身份
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a dschain node",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig()
}

func initFilesWithConfig() error {
	// schnorr节点身份
	keyFile := filepath.Join(config.RootDir, "config", "schnorr_key.json")
	if tmos.FileExists(keyFile) {
		pv := privval.LoadFilePV(keyFile)
		logger.Info("Found schnorr identity", "keyFile", keyFile, "pubkey", pv.GetPubKey())
	} else {
		pv := privval.GenFilePV(keyFile)
		pv.Save()
		logger.Info("Generated schnorr identity", "keyFile", keyFile, "pubkey", pv.GetPubKey())
	}

	// p2p node key
	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	return nil
}
