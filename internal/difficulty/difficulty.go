// Package difficulty implements a sliding-window PoW difficulty adjuster: a
// big.Int target, a bounded window of recent block timestamps, and a
// retarget rule evaluated every adjustment period.
//
// The retarget constants mirror a classic PoW consensus engine's retarget
// window and block interval, scaled down to a configurable period and
// target block time instead of a fixed 100-block/15-minute schedule.
package difficulty

import (
	"encoding/hex"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/b0ase/clawminer/internal/pow"
)

// Adjuster holds mutable difficulty state. All methods are safe for
// concurrent use — writes to adjuster state are serialized with a single
// mutex rather than relying on callers to coordinate.
type Adjuster struct {
	mu sync.Mutex

	target *big.Int

	window           []time.Time
	adjustmentPeriod int64
	targetBlockTime  time.Duration
	totalCount       int64
}

// NewAdjuster creates an adjuster starting at the given integer difficulty
// (1 = easiest), adjustment period in blocks, and target block time.
func NewAdjuster(initialDifficulty int, adjustmentPeriod int64, targetBlockTime time.Duration) *Adjuster {
	if adjustmentPeriod < 1 {
		adjustmentPeriod = 144
	}
	if targetBlockTime <= 0 {
		targetBlockTime = 10 * time.Minute
	}
	target := difficultyToTarget(initialDifficulty)
	return &Adjuster{
		target:           target,
		adjustmentPeriod: adjustmentPeriod,
		targetBlockTime:  targetBlockTime,
	}
}

func difficultyToTarget(difficulty int) *big.Int {
	if difficulty < 1 {
		difficulty = 1
	}
	return new(big.Int).Rsh(pow.MaxTarget(), uint(difficulty-1))
}

// Difficulty returns a leading-zero-equivalent integer derived from
// log2(max/target), for display purposes.
func (a *Adjuster) Difficulty() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.difficultyLocked()
}

func (a *Adjuster) difficultyLocked() int {
	if a.target.Sign() <= 0 {
		return 0
	}
	maxF := new(big.Float).SetInt(pow.MaxTarget())
	targetF := new(big.Float).SetInt(a.target)
	ratio, _ := new(big.Float).Quo(maxF, targetF).Float64()
	if ratio <= 1 {
		return 0
	}
	d := int(math.Round(math.Log2(ratio))) + 1
	if d < 1 {
		d = 1
	}
	return d
}

// Target returns a copy of the current target.
func (a *Adjuster) Target() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.target)
}

// TargetHex returns the current target hex-encoded, as persisted to the
// config KV under "difficulty_target".
func (a *Adjuster) TargetHex() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return hex.EncodeToString(a.target.Bytes())
}

// Bits returns the current target's compact encoding, as stored on mined
// block headers.
func (a *Adjuster) Bits() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return pow.BitsFromTarget(a.target)
}

// TotalBlocks returns the number of blocks RecordBlock has observed since
// boot (or since RestoreState).
func (a *Adjuster) TotalBlocks() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalCount
}

// RecordBlock appends a block timestamp to the sliding window and, every
// adjustmentPeriod blocks, retargets the difficulty based on the ratio of
// actual to expected elapsed time, clamped to [1/4, 4].
func (a *Adjuster) RecordBlock(ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, ts)
	if int64(len(a.window)) > a.adjustmentPeriod {
		a.window = a.window[int64(len(a.window))-a.adjustmentPeriod:]
	}
	a.totalCount++

	if a.totalCount%a.adjustmentPeriod != 0 || len(a.window) < 2 {
		return
	}

	actual := a.window[len(a.window)-1].Sub(a.window[0])
	expected := a.targetBlockTime * time.Duration(len(a.window)-1)
	if expected <= 0 {
		return
	}

	ratio := float64(actual) / float64(expected)
	if ratio < 0.25 {
		ratio = 0.25
	}
	if ratio > 4 {
		ratio = 4
	}

	newTarget := new(big.Float).Mul(new(big.Float).SetInt(a.target), big.NewFloat(ratio))
	nt, _ := newTarget.Int(nil)
	if nt.Sign() < 1 {
		nt = big.NewInt(1)
	}
	if nt.Cmp(pow.MaxTarget()) > 0 {
		nt = pow.MaxTarget()
	}
	a.target = nt
}

// RestoreState reconstructs the adjuster's window from persisted state at
// boot.
func (a *Adjuster) RestoreState(target *big.Int, totalCount int64, recentTimestamps []time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if target != nil && target.Sign() > 0 {
		a.target = new(big.Int).Set(target)
	}
	a.totalCount = totalCount

	window := append([]time.Time(nil), recentTimestamps...)
	if int64(len(window)) > a.adjustmentPeriod {
		window = window[int64(len(window))-a.adjustmentPeriod:]
	}
	a.window = window
}

// AdjustmentPeriod returns the configured adjustment period in blocks.
func (a *Adjuster) AdjustmentPeriod() int64 { return a.adjustmentPeriod }

// TargetBlockTime returns the configured target block time.
func (a *Adjuster) TargetBlockTime() time.Duration { return a.targetBlockTime }

// BlocksInPeriod returns how many blocks have been recorded in the current
// (incomplete) adjustment window, for status reporting.
func (a *Adjuster) BlocksInPeriod() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adjustmentPeriod == 0 {
		return 0
	}
	return a.totalCount % a.adjustmentPeriod
}

// BlocksUntilAdjust returns how many further blocks are needed before the
// next retarget.
func (a *Adjuster) BlocksUntilAdjust() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adjustmentPeriod == 0 {
		return 0
	}
	rem := a.totalCount % a.adjustmentPeriod
	if rem == 0 {
		return a.adjustmentPeriod
	}
	return a.adjustmentPeriod - rem
}
