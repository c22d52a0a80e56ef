package alerts

import (
	"hash/fnv"
	"sync"
)

// lockStripes bounds keyed-lock memory for an arbitrarily large unit fleet.
// Two units hashing to the same stripe over-serialize, which is harmless.
const lockStripes = 64

// keyedMutex serializes work per string key via lock striping. The lifecycle
// manager locks on unit ID so two concurrent classifications of the same
// unit can never interleave their read-decide-write sequences.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu
}
