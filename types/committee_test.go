package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPair(port uint32) PairOfNode {
	priv := Suite.Scalar().Pick(Suite.RandomStream())
	return PairOfNode{
		PubKey: NewPubKey(Suite.Point().Mul(priv, nil)),
		Peer:   NewPeer("127.0.0.1", port),
	}
}

func TestCommitteeDequeOps(t *testing.T) {
	a, b, c := testPair(1), testPair(2), testPair(3)
	comm := NewCommittee([]PairOfNode{a, b, c})

	require.Equal(t, 3, comm.Size())
	assert.True(t, comm.Front().Equal(a))
	assert.True(t, comm.Back().Equal(c))

	w := testPair(4)
	comm.PushFront(w)
	evicted := comm.PopBack()
	assert.True(t, evicted.Equal(c))
	assert.Equal(t, 3, comm.Size())
	assert.True(t, comm.Front().Equal(w))

	// 查找和删除保持相对顺序
	idx := comm.Find(a)
	require.Equal(t, 1, idx)
	comm.Erase(idx)
	assert.Equal(t, -1, comm.Find(a))
	assert.True(t, comm.At(1).Equal(b))

	// 越界访问返回空成员
	assert.True(t, comm.At(99).PubKey.IsEmpty())
}

func TestCommitteeHashChangesWithOrder(t *testing.T) {
	a, b := testPair(1), testPair(2)

	h1 := NewCommittee([]PairOfNode{a, b}).Hash()
	h2 := NewCommittee([]PairOfNode{b, a}).Hash()
	// 顺序参与hash
	assert.NotEqual(t, h1, h2)

	// copy不共享底层数组
	comm := NewCommittee([]PairOfNode{a, b})
	cp := comm.Copy()
	cp.PopBack()
	assert.Equal(t, 2, comm.Size())
	assert.Equal(t, 1, cp.Size())
}

func TestPackBitVector(t *testing.T) {
	bz := PackBitVector([]bool{true, false, true})
	// 2字节长度 + 1字节位图
	require.Len(t, bz, 3)
	assert.Equal(t, byte(0), bz[0])
	assert.Equal(t, byte(3), bz[1])
	assert.Equal(t, byte(0xA0), bz[2])

	assert.Equal(t, 2, CountTrue([]bool{true, false, true}))
}
