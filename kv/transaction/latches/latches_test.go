package latches

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireLatches(t *testing.T) {
	l := NewLatches()

	// Acquiring a new latch is ok.
	held := [][]byte{{}, {3}, {3, 0, 42}}
	assert.Nil(t, l.AcquireLatches(held))

	// Can only acquire once, and a partial overlap blocks the whole batch.
	ch := l.AcquireLatches([][]byte{{}})
	assert.NotNil(t, ch)
	assert.NotNil(t, l.AcquireLatches([][]byte{{9}, {3, 0, 42}}))
	assert.Nil(t, l.AcquireLatches([][]byte{{9}}))

	// Release wakes waiters, then acquire is ok.
	l.ReleaseLatches(held)
	_, open := <-ch
	assert.False(t, open)
	assert.Nil(t, l.AcquireLatches([][]byte{{3}}))
	assert.NotNil(t, l.AcquireLatches([][]byte{{3}, {3, 0, 42}}))
}

func TestWaitForLatches(t *testing.T) {
	l := NewLatches()
	rows := [][]byte{[]byte("a"), []byte("b")}
	l.WaitForLatches(rows)

	acquired := make(chan struct{})
	go func() {
		l.WaitForLatches([][]byte{[]byte("b")})
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("latch acquired while still held")
	case <-time.After(20 * time.Millisecond):
	}

	l.ReleaseLatches(rows)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("latch was not handed over")
	}
}

func TestValidate(t *testing.T) {
	l := NewLatches()
	l.Validate([][]byte{[]byte("a")})

	var seen [][]byte
	l.Validation = func(latched [][]byte) {
		seen = latched
	}
	l.Validate([][]byte{[]byte("a")})
	assert.Equal(t, [][]byte{[]byte("a")}, seen)
}
