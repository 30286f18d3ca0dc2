package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Fingerprint computes the stable content hash used for duplicate detection:
// a sha256 digest over the fully rendered subject and body plus the channel
// and resolved recipient. Two deliveries that are byte-identical across those
// four fields collide by design, regardless of which event produced them.
//
// Fields are NUL-separated so that shifting bytes between adjacent fields
// cannot produce the same digest input.
func Fingerprint(subject, body, channel, recipient string) string {
	h := sha256.New()
	for _, field := range []string{subject, body, channel, recipient} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// KeyedMutex serializes work per fingerprint. The pipeline holds the
// fingerprint's lock across the whole check-then-send-then-record sequence,
// which closes the race where two concurrent identical events both pass
// ShouldSend before either records.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*fpLock
}

type fpLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*fpLock)}
}

// Lock acquires the lock for the given key, blocking while another holder has
// it. The returned function releases the lock and must be called exactly once.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &fpLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
