package job

import "sync"

// keyedMutex serializes operations per key. The Service uses one to make
// each job record behave as if owned by a single logical actor, so
// retryCount increments survive concurrent callers.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key and frees it once uncontended.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// machineLocks is the per-machine advisory dispatch lock: at most one job
// may be mid-dispatch against a physical machine at a time. Held only for
// the duration of a send attempt.
type machineLocks struct {
	mu     sync.Mutex
	holder map[string]string // machine id -> job id
}

func newMachineLocks() *machineLocks {
	return &machineLocks{holder: make(map[string]string)}
}

// TryAcquire claims the machine for jobID. Returns the holding job id and
// false when another dispatch is already in flight.
func (l *machineLocks) TryAcquire(machineID, jobID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, busy := l.holder[machineID]; busy {
		return holder, false
	}
	l.holder[machineID] = jobID
	return jobID, true
}

// Release frees the machine if jobID still holds it.
func (l *machineLocks) Release(machineID, jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder[machineID] == jobID {
		delete(l.holder, machineID)
	}
}
