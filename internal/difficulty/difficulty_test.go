package difficulty

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRestoreStateReflectsTargetAndCount(t *testing.T) {
	a := NewAdjuster(1, 4, time.Second)
	target := a.Target()
	target.Rsh(target, 4)

	window := []time.Time{time.Now().Add(-3 * time.Second), time.Now().Add(-2 * time.Second)}
	a.RestoreState(target, 40, window)

	require.Equal(t, target.String(), a.Target().String())
	require.Equal(t, int64(40), a.TotalBlocks())
}

func TestRecordBlockAdjustsWithinBounds(t *testing.T) {
	a := NewAdjuster(1, 4, time.Second)
	before := a.Target()

	base := time.Now()
	for i := 0; i < 4; i++ {
		// 4x too fast: blocks every 250ms against a 1s target block time.
		a.RecordBlock(base.Add(time.Duration(i) * 250 * time.Millisecond))
	}

	after := a.Target()
	require.Equal(t, -1, after.Cmp(before), "target should strictly decrease when blocks arrive too fast")

	// The retarget ratio is clamped to 1/4, so the new target must not be
	// smaller than a quarter of the original.
	minAllowed := new(big.Int).Rsh(before, 2)
	require.True(t, after.Cmp(minAllowed) >= 0, "target dropped by more than the 1/4 clamp")
}

func TestDifficultyMatchesRestoredTarget(t *testing.T) {
	a := NewAdjuster(1, 144, 10*time.Minute)
	restored := NewAdjuster(4, 144, 10*time.Minute).Target()
	a.RestoreState(restored, 0, nil)
	require.Equal(t, restored.String(), a.Target().String())
}
