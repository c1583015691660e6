package commands

import (
	"fmt"
	"os"
	"strings"

	dscfg "dschain/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/cli"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	config       = cfg.DefaultConfig()
	runtimeViper = viper.New()
	logger       = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
)

// ParseConfig 读取p2p/目录配置
func ParseConfig() (*cfg.Config, error) {
	conf := cfg.DefaultConfig()
	err := viper.Unmarshal(conf)
	if err != nil {
		return nil, err
	}
	conf.SetRoot(conf.RootDir)
	cfg.EnsureRoot(conf.RootDir)
	return conf, nil
}

// ParseRuntimeConfig DS core的运行参数
// 配置文件缺失时落到默认值
func ParseRuntimeConfig() (*dscfg.RuntimeConfig, error) {
	runtimeViper.SetConfigName("runtime")
	runtimeViper.AddConfigPath(config.RootDir)
	runtimeViper.AddConfigPath(".")
	if err := runtimeViper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return dscfg.LoadRuntimeConfig(runtimeViper)
}

// RootCmd is the root command.
var RootCmd = &cobra.Command{
	Use:   "dschain",
	Short: "DS committee post-consensus state machine node",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = ParseConfig()
		if err != nil {
			return err
		}

		if viper.GetBool(cli.TraceFlag) {
			logger = log.NewTracingLogger(logger)
		}

		logger = logger.With("module", "main")
		return nil
	},
}

// deprecateSnakeCase 提示snake_case的alias已经过时
func deprecateSnakeCase(cmd *cobra.Command, args []string) {
	if strings.Contains(cmd.CalledAs(), "_") {
		fmt.Println("deprecated: snake_case commands will be replaced by hyphen-case commands")
	}
}
