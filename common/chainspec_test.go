package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainSpecIsShanghai(t *testing.T) {
	var shanghai BlockNumber = 100
	spec := &ChainSpec{ShanghaiBlock: &shanghai}

	require.False(t, spec.IsShanghai(99))
	require.True(t, spec.IsShanghai(100))
	require.True(t, spec.IsShanghai(101))
}

func TestChainSpecNilIsNeverActive(t *testing.T) {
	require.False(t, (*ChainSpec)(nil).IsShanghai(0))
	require.False(t, (&ChainSpec{}).IsShanghai(0))
	require.False(t, (*ChainSpec)(nil).IsSpuriousDragon(0))
}

func TestChainSpecIsSpuriousDragon(t *testing.T) {
	var sd BlockNumber = 50
	spec := &ChainSpec{SpuriousDragonBlock: &sd}

	require.False(t, spec.IsSpuriousDragon(49))
	require.True(t, spec.IsSpuriousDragon(50))
}
