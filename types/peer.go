package types

import (
	"fmt"
)

// Peer 一个节点的网络地址
// 零值Peer作为哨兵值使用：VC block里故障leader是节点自己时，peer字段置零
type Peer struct {
	IP   string `json:"ip"`
	Port uint32 `json:"port"`
}

func NewPeer(ip string, port uint32) Peer {
	return Peer{IP: ip, Port: port}
}

func (p Peer) Equal(other Peer) bool {
	return p.IP == other.IP && p.Port == other.Port
}

// IsZero 判断是否是哨兵值
func (p Peer) IsZero() bool {
	return p.IP == "" && p.Port == 0
}

func (p Peer) String() string {
	if p.IsZero() {
		return "<0.0.0.0:0>"
	}
	return fmt.Sprintf("<%s:%d>", p.IP, p.Port)
}
