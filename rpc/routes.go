package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	"status":    rpc.NewRPCFunc(Status, ""),
	"committee": rpc.NewRPCFunc(Committee, ""),
	"metrics":   rpc.NewRPCFunc(Metrics, ""),
}
