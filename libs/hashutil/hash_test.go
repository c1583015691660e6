package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash16Deterministic(t *testing.T) {
	a := Hash16([]byte("tx block 42"))
	b := Hash16([]byte("tx block 42"))
	assert.Equal(t, a, b)

	c := Hash16([]byte("tx block 43"))
	assert.NotEqual(t, a, c)
}

func TestUpdateRandChain(t *testing.T) {
	seed := Sum([]byte("genesis"))

	r1 := UpdateRand(seed, Sum([]byte("block 1")))
	r2 := UpdateRand(r1, Sum([]byte("block 2")))
	require.Len(t, r1, 32)
	require.Len(t, r2, 32)

	// 相同输入要得到相同的链
	assert.Equal(t, r1, UpdateRand(seed, Sum([]byte("block 1"))))
	// 顺序不同结果必须不同
	assert.NotEqual(t, r2, UpdateRand(seed, Sum([]byte("block 2"))))
}
