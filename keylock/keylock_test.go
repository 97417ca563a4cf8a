package keylock

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSameKeySerializes(t *testing.T) {
	l := New[string]()

	const n = 100
	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do("k", func() error {
				// Not atomic on purpose: only the lock makes this safe.
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != n {
		t.Errorf("expected %d, got %d", n, counter)
	}
}

func TestDistinctKeysProceed(t *testing.T) {
	l := New[string]()

	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = l.Do("a", func() error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held

	// A different key must not wait on the held lock.
	done := make(chan struct{})
	go func() {
		_ = l.Do("b", func() error { return nil })
		close(done)
	}()

	<-done
	close(release)
}

func TestDoReturnsError(t *testing.T) {
	l := New[int]()

	want := errors.New("boom")
	if err := l.Do(1, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestPanicReleasesLock(t *testing.T) {
	l := New[string]()

	func() {
		defer func() { _ = recover() }()
		_ = l.Do("k", func() error { panic("boom") })
	}()

	// The key must be usable again after the recovered panic.
	done := make(chan struct{})
	go func() {
		_ = l.Do("k", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock not released after panic")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.locks) != 0 {
		t.Errorf("expected no retained locks, got %d", len(l.locks))
	}
}

func TestLocksReleased(t *testing.T) {
	l := New[string]()

	_ = l.Do("k", func() error { return nil })

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.locks) != 0 {
		t.Errorf("expected no retained locks, got %d", len(l.locks))
	}
}
