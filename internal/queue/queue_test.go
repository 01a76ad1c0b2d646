package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopPriorityOrder(t *testing.T) {
	q := NewInMemoryQueue(0)

	require.NoError(t, q.Push(NewTask("https://a.com/1", 0)))
	require.NoError(t, q.Push(NewTask("https://a.com/2", 5)))
	require.NoError(t, q.Push(NewTask("https://a.com/3", 0)))
	require.NoError(t, q.Push(NewTask("https://a.com/4", 5)))
	assert.Equal(t, 4, q.Size())

	var got []string
	for i := 0; i < 4; i++ {
		task, err := q.Pop(context.Background())
		require.NoError(t, err)
		got = append(got, task.URL)
	}

	assert.Equal(t, []string{"https://a.com/2", "https://a.com/4", "https://a.com/1", "https://a.com/3"}, got)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue(0)
	done := make(chan *Task)

	go func() {
		task, _ := q.Pop(context.Background())
		done <- task
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(NewTask("https://a.com/late", 0)))

	select {
	case task := <-done:
		assert.Equal(t, "https://a.com/late", task.URL)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestPopContextCancel(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenFails(t *testing.T) {
	q := NewInMemoryQueue(0)
	require.NoError(t, q.Push(NewTask("https://a.com/1", 0)))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push(NewTask("https://a.com/2", 0)), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a.com/1", task.URL)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCapacity(t *testing.T) {
	q := NewInMemoryQueue(1)
	require.NoError(t, q.Push(NewTask("https://a.com/1", 0)))
	assert.ErrorIs(t, q.Push(NewTask("https://a.com/2", 0)), ErrQueueFull)
}

func TestRequeueBumpsAttempts(t *testing.T) {
	q := NewInMemoryQueue(0)
	task := NewTask("https://a.com/1", 0)
	assert.NotEmpty(t, task.ID)

	require.NoError(t, q.Requeue(task))
	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestPopBatch(t *testing.T) {
	b := NewBatchQueue(2, 0)
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		require.NoError(t, b.Push(NewTask(u, 0)))
	}

	batch, err := b.PopBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	batch, err = b.PopBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "https://a.com/3", batch[0].URL)
}
