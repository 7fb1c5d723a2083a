package lockset

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquire_Excludes(t *testing.T) {
	table := New()

	release := table.Acquire("/a")
	acquired := make(chan struct{})
	go func() {
		r := table.Acquire("/a")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded")
	}
}

func TestAcquire_IndependentKeys(t *testing.T) {
	table := New()
	r1 := table.Acquire("/a")
	defer r1()

	done := make(chan struct{})
	go func() {
		table.Acquire("/b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key blocked")
	}
}

func TestAcquire_DuplicateKeys(t *testing.T) {
	table := New()
	release := table.Acquire("/a", "/a")
	assert.Equal(t, 1, table.Len())
	release()
	assert.Equal(t, 0, table.Len())
}

func TestRelease_Idempotent(t *testing.T) {
	table := New()
	release := table.Acquire("/a", "/b")
	release()
	release()
	assert.Equal(t, 0, table.Len())
	table.Acquire("/a")()
}

func TestAcquire_CrossingPairsDoNotDeadlock(t *testing.T) {
	table := New()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			table.Acquire("/x", "/y")()
		}()
		go func() {
			defer wg.Done()
			table.Acquire("/y", "/x")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("crossing acquisitions deadlocked")
	}
	assert.Equal(t, 0, table.Len())
}
