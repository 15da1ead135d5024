package auth

import (
	"hash/fnv"
	"math"
	"sync"
)

// BloomFilter remembers taken usernames. Test never returns false for an
// added name; a true result still has to be confirmed against the repository.
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

	return &BloomFilter{
		words:     make([]uint64, (m+63)/64),
		numBits:   m,
		numHashes: optimalHashCount(m, uint64(expectedItems)),
	}
}

func optimalBitCount(n uint64, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)

	return max(uint64(math.Ceil(m)), 64)
}

func optimalHashCount(m, n uint64) uint64 {
	k := uint64(math.Round(float64(m) / float64(n) * math.Ln2))

	return max(k, 1)
}

// positions uses double hashing over FNV-1a and FNV-1.
func (bf *BloomFilter) positions(item string, fn func(pos uint64) bool) {
	h1 := fnv.New64a()
	_, _ = h1.Write([]byte(item))
	v1 := h1.Sum64()

	h2 := fnv.New64()
	_, _ = h2.Write([]byte(item))
	v2 := h2.Sum64() | 1

	for i := range bf.numHashes {
		if !fn((v1 + i*v2) % bf.numBits) {
			return
		}
	}
}

func (bf *BloomFilter) Add(item string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	bf.positions(item, func(pos uint64) bool {
		bf.words[pos/64] |= 1 << (pos % 64)

		return true
	})
}

func (bf *BloomFilter) Test(item string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	found := true

	bf.positions(item, func(pos uint64) bool {
		if bf.words[pos/64]&(1<<(pos%64)) == 0 {
			found = false
		}

		return found
	})

	return found
}
