// Package pow implements the double-SHA256 proof-of-work primitives: header
// hashing, compact difficulty ("bits") encoding, and the difficulty check.
package pow

import (
	"crypto/sha256"
	"math/big"

	"github.com/b0ase/clawminer/internal/block"
)

// CalculateBlockHash double-SHA256s the header's canonical byte encoding.
func CalculateBlockHash(h block.Header) [32]byte {
	first := sha256.Sum256(h.CanonicalBytes())
	second := sha256.Sum256(first[:])
	return second
}

// maxTarget is the largest representable target: difficulty 1.
var maxTarget = func() *big.Int {
	t := new(big.Int).Lsh(big.NewInt(1), 256)
	return t.Sub(t, big.NewInt(1))
}()

// TargetFromBits decodes a compact "bits" difficulty encoding (the same
// 1-exponent + 3-mantissa layout Bitcoin-family chains use) into a target
// big.Int.
func TargetFromBits(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff

	target := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		shift := 8 * (3 - int(exponent))
		target.Rsh(target, uint(shift))
	} else {
		shift := 8 * (int(exponent) - 3)
		target.Lsh(target, uint(shift))
	}
	if target.Sign() == 0 {
		return big.NewInt(1)
	}
	return target
}

// BitsFromTarget encodes a target big.Int into the compact "bits" form.
func BitsFromTarget(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0x01000001
	}
	if target.Cmp(maxTarget) > 0 {
		target = maxTarget
	}

	bytes := target.Bytes()
	exponent := len(bytes)
	var mantissa uint32

	switch {
	case exponent == 0:
		return 0
	case exponent <= 3:
		padded := make([]byte, 3)
		copy(padded[3-exponent:], bytes)
		mantissa = uint32(padded[0])<<16 | uint32(padded[1])<<8 | uint32(padded[2])
	default:
		mantissa = uint32(bytes[0])<<16 | uint32(bytes[1])<<8 | uint32(bytes[2])
	}

	// If the high bit of the mantissa is set it would be interpreted as a
	// sign bit; shift down and bump the exponent to compensate.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return uint32(exponent)<<24 | mantissa
}

// hashAsBigIntLE interprets the hash little-endian as an integer, matching
// how the compact-bits target comparison is conventionally done.
func hashAsBigIntLE(hash [32]byte) *big.Int {
	reversed := make([]byte, 32)
	for i, b := range hash {
		reversed[31-i] = b
	}
	return new(big.Int).SetBytes(reversed)
}

// CheckDifficulty reports whether hash, interpreted little-endian, is
// strictly below the target decoded from bits.
func CheckDifficulty(hash [32]byte, bits uint32) bool {
	target := TargetFromBits(bits)
	return hashAsBigIntLE(hash).Cmp(target) < 0
}

// CheckDifficultyTarget is CheckDifficulty against an already-decoded
// target, used by the difficulty adjuster which keeps its state as a
// big.Int rather than compact bits.
func CheckDifficultyTarget(hash [32]byte, target *big.Int) bool {
	return hashAsBigIntLE(hash).Cmp(target) < 0
}

// MaxTarget returns a copy of the maximum representable target (difficulty
// 1 / easiest possible).
func MaxTarget() *big.Int {
	return new(big.Int).Set(maxTarget)
}
