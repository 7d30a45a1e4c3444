package pow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/block"
)

func TestCalculateBlockHashDeterministic(t *testing.T) {
	h := block.Header{Version: 1, Timestamp: 1000, Bits: 0x1f00ffff, MinerAddress: "1Abc"}
	h1 := CalculateBlockHash(h)
	h2 := CalculateBlockHash(h)
	require.Equal(t, h1, h2)

	h.Nonce = 1
	h3 := CalculateBlockHash(h)
	require.NotEqual(t, h1, h3)
}

func TestTargetBitsRoundTrip(t *testing.T) {
	target := new(big.Int)
	target.SetString("00000000ffff00000000000000000000000000000000000000000000000000", 16)

	bits := BitsFromTarget(target)
	back := TargetFromBits(bits)

	// Compact encoding loses precision below the 3 mantissa bytes; the
	// round trip must stay within one encoding step of the original.
	diff := new(big.Int).Sub(target, back)
	diff.Abs(diff)
	tolerance := new(big.Int).Rsh(target, 16)
	require.True(t, diff.Cmp(tolerance) <= 0, "round trip drifted too far: %s vs %s", target, back)
}

func TestCheckDifficultyTrivial(t *testing.T) {
	// The maximal compact target is 0xffff<<240; this hash reads
	// little-endian as 2^248, which is below it.
	var hash [32]byte
	hash[31] = 1
	require.True(t, CheckDifficulty(hash, BitsFromTarget(MaxTarget())))
}

func TestCheckDifficultyRejectsAboveTarget(t *testing.T) {
	target := big.NewInt(1)
	bits := BitsFromTarget(target)

	var hash [32]byte
	hash[0] = 0xff // least significant byte little-endian: value 255 > 1
	require.False(t, CheckDifficulty(hash, bits))
}
