package publisher

import "sync"

type targetKey struct {
	postID    int64
	accountID int64
}

// targetLocks serializes work per (post, account) pair. Unrelated pairs never
// contend. Entries are tiny and bounded by the posts in flight, so they are
// not reclaimed.
type targetLocks struct {
	locks sync.Map // targetKey -> *sync.Mutex
}

func (l *targetLocks) lock(postID, accountID int64) func() {
	v, _ := l.locks.LoadOrStore(targetKey{postID, accountID}, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
