package rpc

import (
	"dschain/committee"
	"dschain/directory"
	"dschain/libs/metric"
	"dschain/state"

	jsoniter "github.com/json-iterator/go"
)

var (
	env  *Environment
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

func SetEnvironment(e *Environment) {
	env = e
}

type Environment struct {
	Chain     *state.ChainState
	Registry  *committee.Registry
	Directory *directory.DirectoryService

	MetricSet *metric.MetricSet
}
