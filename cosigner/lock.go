package cosigner

import "sync"

type recordLock struct {
	mutex sync.Mutex
	refs  int
}

// recordLocks serializes read-modify-write sequences per record id.
type recordLocks struct {
	mutex *sync.Mutex
	locks map[string]*recordLock
}

func newRecordLocks() *recordLocks {
	return &recordLocks{
		mutex: new(sync.Mutex),
		locks: make(map[string]*recordLock),
	}
}

func (rl *recordLocks) Lock(id string) func() {
	rl.mutex.Lock()
	l := rl.locks[id]
	if l == nil {
		l = &recordLock{}
		rl.locks[id] = l
	}
	l.refs += 1
	rl.mutex.Unlock()

	l.mutex.Lock()
	return func() {
		l.mutex.Unlock()
		rl.mutex.Lock()
		l.refs -= 1
		if l.refs == 0 {
			delete(rl.locks, id)
		}
		rl.mutex.Unlock()
	}
}
