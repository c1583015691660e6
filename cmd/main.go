package main

import (
	"fmt"
	"os"
	"path/filepath"

	cmd "dschain/cmd/commands"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/cli"
)

func main() {
	cfg.DefaultTendermintDir = ".dschain"
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cli.NewCompletionCmd(rootCmd, true),
	)

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenNodeKeyCmd,
		cmd.GenCommitteeCmd,
		cmd.ShowNodeIDCmd,
		cmd.NewRunNodeCmd(),
	)

	baseCmd := cli.PrepareBaseCmd(rootCmd, "DS", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultTendermintDir)))

	if err := baseCmd.Execute(); err != nil {
		fmt.Println("error")
		panic(err)
	}
}
