package associator

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strings"
)

// Signature computes a 64-bit simhash over the whitespace-split words
// of the normalized text stream. Near-identical pages produce
// signatures within a small Hamming distance of each other.
func Signature(text string) uint64 {
	var counts [64]int
	for _, word := range strings.Fields(text) {
		h := fnv.New64a()
		h.Write([]byte(strings.ToLower(word)))
		wh := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if wh&(1<<uint(bit)) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}
	var sig uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			sig |= 1 << uint(bit)
		}
	}
	return sig
}

// Hamming returns the number of differing bits between two signatures.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// IsNearDuplicate reports whether two signatures are within maxDist
// bits of each other.
func IsNearDuplicate(a, b uint64, maxDist int) bool {
	return Hamming(a, b) <= maxDist
}

// AssetGroup derives a stable dedup group key from an image's asset
// URL. Images sharing a group key are the same asset reused across
// pages; retrieval uses the key to diversify selected images.
func AssetGroup(assetURL string) string {
	h := fnv.New64a()
	h.Write([]byte(assetURL))
	return fmt.Sprintf("%016x", h.Sum64())
}
