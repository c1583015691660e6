package commands

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"dschain/types"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

var (
	committeeSize int
	basePort      uint32
)

func init() {
	GenCommitteeCmd.Flags().IntVar(&committeeSize, "size", 4, "DS committee size")
	GenCommitteeCmd.Flags().Uint32Var(&basePort, "base-port", 26656, "base listen port of the members")
}

// CommitteeGenesis 初始DS委员会和lookup集合
type CommitteeGenesis struct {
	Members []types.PairOfNode `json:"members"`
	Lookups []types.Peer       `json:"lookups"`
}

// GenCommitteeCmd 给测试网生成一个随机的初始委员会文件
var GenCommitteeCmd = &cobra.Command{
	Use:     "gen-committee",
	Aliases: []string{"gen_committee"},
	Short:   "Generate a random initial DS committee file",
	PreRun:  deprecateSnakeCase,
	RunE:    genCommittee,
}

func genCommittee(cmd *cobra.Command, args []string) error {
	gen := CommitteeGenesis{}
	for i := 0; i < committeeSize; i++ {
		priv := types.Suite.Scalar().Pick(types.Suite.RandomStream())
		gen.Members = append(gen.Members, types.PairOfNode{
			PubKey: types.NewPubKey(types.Suite.Point().Mul(priv, nil)),
			Peer:   types.NewPeer("127.0.0.1", basePort+uint32(i)),
		})
	}

	bz, err := tmjson.MarshalIndent(gen, "", "  ")
	if err != nil {
		return err
	}

	outFile := filepath.Join(config.RootDir, "config", "committee.json")
	if err := ioutil.WriteFile(outFile, bz, 0644); err != nil {
		return err
	}

	fmt.Println("committee file written to", outFile)
	return nil
}

// LoadCommitteeGenesis 从文件加载初始委员会
func LoadCommitteeGenesis(path string) (*CommitteeGenesis, error) {
	bz, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gen := &CommitteeGenesis{}
	if err := tmjson.Unmarshal(bz, gen); err != nil {
		return nil, err
	}
	return gen, nil
}
