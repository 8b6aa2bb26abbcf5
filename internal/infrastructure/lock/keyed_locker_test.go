package lock

import (
	"sync"
	"testing"
)

func TestTryLockIsExclusivePerKey(t *testing.T) {
	locker := NewKeyedLocker()

	unlock, ok := locker.TryLock("Products:a")
	if !ok {
		t.Fatalf("TryLock() ok = false on free key")
	}
	if _, ok := locker.TryLock("Products:a"); ok {
		t.Fatalf("TryLock() ok = true on held key")
	}
	otherUnlock, ok := locker.TryLock("Products:b")
	if !ok {
		t.Fatalf("TryLock() ok = false on unrelated key")
	}
	otherUnlock()

	unlock()
	unlock()
	if locker.Held() != 0 {
		t.Fatalf("Held() = %d after unlock", locker.Held())
	}
	again, ok := locker.TryLock("Products:a")
	if !ok {
		t.Fatalf("TryLock() ok = false after unlock")
	}
	again()
}

func TestTryLockGrantsOneWinner(t *testing.T) {
	locker := NewKeyedLocker()
	start := make(chan struct{})
	results := make(chan func(), 16)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if unlock, ok := locker.TryLock("Products:a"); ok {
				results <- unlock
			}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for unlock := range results {
		winners++
		unlock()
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
}
