package types

import (
	"fmt"
	"strings"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// PairOfNode DS委员会的一个成员 - (公钥, 网络地址)
type PairOfNode struct {
	PubKey PubKey `json:"pub_key"`
	Peer   Peer   `json:"peer"`
}

func (p PairOfNode) Equal(other PairOfNode) bool {
	return p.PubKey.Equals(other.PubKey) && p.Peer.Equal(other.Peer)
}

func (p PairOfNode) String() string {
	return fmt.Sprintf("{%v %v}", p.PubKey, p.Peer)
}

// Committee 有序的DS委员会
// 头部是最新加入的PoW winner，尾部是最老的backup
// NOTE: Not goroutine-safe. 并发保护由committee.Registry负责
type Committee struct {
	Members []PairOfNode `json:"members"`
}

func NewCommittee(members []PairOfNode) *Committee {
	c := &Committee{}
	c.Members = make([]PairOfNode, 0, len(members))
	c.Members = append(c.Members, members...)
	return c
}

func (c *Committee) Size() int {
	return len(c.Members)
}

// At 返回index处成员的副本
// index越界返回空成员
func (c *Committee) At(index int) PairOfNode {
	if index < 0 || index >= len(c.Members) {
		return PairOfNode{}
	}
	return c.Members[index]
}

func (c *Committee) Front() PairOfNode {
	return c.At(0)
}

func (c *Committee) Back() PairOfNode {
	return c.At(len(c.Members) - 1)
}

// PushFront 新的PoW winner插入到头部
func (c *Committee) PushFront(member PairOfNode) {
	c.Members = append([]PairOfNode{member}, c.Members...)
}

// PopBack 驱逐最老的backup
func (c *Committee) PopBack() PairOfNode {
	if len(c.Members) == 0 {
		return PairOfNode{}
	}
	last := c.Members[len(c.Members)-1]
	c.Members = c.Members[:len(c.Members)-1]
	return last
}

func (c *Committee) PushBack(member PairOfNode) {
	c.Members = append(c.Members, member)
}

// Find 按(公钥, 地址)的完整匹配查找成员
func (c *Committee) Find(member PairOfNode) int {
	for idx, m := range c.Members {
		if m.Equal(member) {
			return idx
		}
	}
	return -1
}

// IndexOfPubKey 只按公钥查找成员
func (c *Committee) IndexOfPubKey(pubKey PubKey) int {
	for idx, m := range c.Members {
		if m.PubKey.Equals(pubKey) {
			return idx
		}
	}
	return -1
}

// Erase 删除index处的成员，保持其余成员的相对顺序
func (c *Committee) Erase(index int) {
	if index < 0 || index >= len(c.Members) {
		return
	}
	c.Members = append(c.Members[:index], c.Members[index+1:]...)
}

func (c *Committee) Copy() *Committee {
	return NewCommittee(c.Members)
}

// Hash 委员会的merkle root，区块头里的committee_hash
func (c *Committee) Hash() tmbytes.HexBytes {
	bzs := make([][]byte, len(c.Members))
	for i, m := range c.Members {
		bz, err := tmjson.Marshal(m)
		if err != nil {
			panic(err)
		}
		bzs[i] = bz
	}
	return merkle.HashFromByteSlices(bzs)
}

// Peers 返回所有非哨兵地址
func (c *Committee) Peers() []Peer {
	peers := make([]Peer, 0, len(c.Members))
	for _, m := range c.Members {
		if !m.Peer.IsZero() {
			peers = append(peers, m.Peer)
		}
	}
	return peers
}

func (c *Committee) String() string {
	var sb strings.Builder
	sb.WriteString("Committee{")
	for idx, m := range c.Members {
		sb.WriteString(fmt.Sprintf("\n  #%d %v", idx, m))
	}
	sb.WriteString("\n}")
	return sb.String()
}
