package pkg

import "sync"

type HasLocker interface{ GetLocker() *sync.RWMutex }

func LockWrap(i HasLocker, f func()) {
	i.GetLocker().Lock()
	defer i.GetLocker().Unlock()
	f()
}

func RLockWrap(i HasLocker, f func()) {
	i.GetLocker().RLock()
	defer i.GetLocker().RUnlock()
	f()
}

// RLockGet runs f under the read lock and returns its result.
func RLockGet[T any](i HasLocker, f func() T) T {
	i.GetLocker().RLock()
	defer i.GetLocker().RUnlock()
	return f()
}
