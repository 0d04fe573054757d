package authentication

import (
	"hash/fnv"
	"math"
	"sync"
)

// BloomFilter is a concurrency-safe set membership filter over strings.
// Test may report false positives but never false negatives.
type BloomFilter struct {
	mu        sync.RWMutex
	words     []uint64
	numBits   uint64
	numHashes uint64
}

func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}

	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m := optimalBitCount(uint64(expectedItems), falsePositiveRate)
	k := optimalHashCount(m, uint64(expectedItems))

	return &BloomFilter{
		words:     make([]uint64, (m+63)/64),
		numBits:   m,
		numHashes: k,
	}
}

func optimalBitCount(n uint64, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)

	return max(uint64(math.Ceil(m)), 1)
}

func optimalHashCount(m, n uint64) uint64 {
	k := uint64(math.Round(float64(m) / float64(n) * math.Ln2))

	return max(k, 1)
}

// positions uses double hashing over two FNV variants.
func (bf *BloomFilter) positions(item string) []uint64 {
	h1 := fnv.New64a()
	_, _ = h1.Write([]byte(item))
	v1 := h1.Sum64()

	h2 := fnv.New64()
	_, _ = h2.Write([]byte(item))
	v2 := h2.Sum64() | 1

	result := make([]uint64, bf.numHashes)
	for i := range bf.numHashes {
		result[i] = (v1 + i*v2) % bf.numBits
	}

	return result
}

func (bf *BloomFilter) Add(item string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	for _, pos := range bf.positions(item) {
		bf.words[pos/64] |= 1 << (pos % 64)
	}
}

func (bf *BloomFilter) Test(item string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	for _, pos := range bf.positions(item) {
		if bf.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}

	return true
}
