// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package envelope

import (
	crand "crypto/rand"
	"io"
	"math/rand"
	"sync"
	"time"
)

// IV sources
const (
	IVSourceFast   = "fast"
	IVSourceSecure = "secure"
)

// fastReader fills buffers from math/rand. It matches the firmware's IV generator and is
// predictable; use IVSourceSecure where that matters.
type fastReader struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *fastReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p {
		p[i] = byte(r.rng.Intn(256))
	}
	return len(p), nil
}

var (
	fastOnce   sync.Once
	fastShared *fastReader
)

// FastRand returns the shared non-cryptographic IV source.
func FastRand() io.Reader {
	fastOnce.Do(func() {
		fastShared = &fastReader{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	})
	return fastShared
}

// NewFastRand returns a non-cryptographic IV source with a fixed seed.
func NewFastRand(seed int64) io.Reader {
	return &fastReader{rng: rand.New(rand.NewSource(seed))}
}

// RandSource resolves an IV source name. Unknown names fall back to the fast source.
func RandSource(name string) io.Reader {
	if name == IVSourceSecure {
		return crand.Reader
	}
	return FastRand()
}
