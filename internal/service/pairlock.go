package service

import (
	"hash/fnv"
	"sync"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

const lockStripes = 256

// pairLocks serializes work on one conversation pair. Distinct pairs may share
// a stripe; that only costs concurrency.
type pairLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (p *pairLocks) lock(a, b string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain.PairKey(a, b)))
	mu := &p.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
