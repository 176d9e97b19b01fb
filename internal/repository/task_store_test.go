package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

func newTestStore() *MemoryTaskStore {
	// 测试里不启动清理协程
	return NewMemoryTaskStore(0, 0)
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore()
	defer store.Close()

	created := store.Create("task-1")
	assert.Equal(t, models.StatusCreated, created.Status)
	assert.Zero(t, created.Progress)

	got, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, "task-1", got.ID)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestUpdateSwapsWholeRecord(t *testing.T) {
	store := newTestStore()
	defer store.Close()
	store.Create("task-1")

	err := store.Update("task-1", func(task *models.TaskStatus) {
		task.Status = "正在分组工单数据..."
		task.Progress = 10
	})
	require.NoError(t, err)

	got, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, "正在分组工单数据...", got.Status)
	assert.Equal(t, 10.0, got.Progress)

	assert.ErrorIs(t, store.Update("missing", func(*models.TaskStatus) {}), ErrTaskNotFound)
}

func TestGetReturnsIsolatedSnapshot(t *testing.T) {
	store := newTestStore()
	defer store.Close()
	store.Create("task-1")

	require.NoError(t, store.Update("task-1", func(task *models.TaskStatus) {
		task.CleanedQA = []models.QAPair{{WorkOrderID: "WO-1", Question: "q", Answer: "a"}}
	}))

	// 篡改快照不应影响存储的记录
	snapshot, ok := store.Get("task-1")
	require.True(t, ok)
	snapshot.CleanedQA[0].Question = "tampered"

	fresh, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, "q", fresh.CleanedQA[0].Question)
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	store := newTestStore()
	defer store.Close()
	store.Create("task-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Update("task-1", func(task *models.TaskStatus) {
				task.Progress++
			})
		}()
		go func() {
			defer wg.Done()
			task, ok := store.Get("task-1")
			if ok {
				// 快照内字段必须自洽，进度不可能为负
				assert.GreaterOrEqual(t, task.Progress, 0.0)
			}
		}()
	}
	wg.Wait()

	got, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, 50.0, got.Progress)
}

func TestEvictExpired(t *testing.T) {
	store := NewMemoryTaskStore(time.Hour, 0)
	defer store.Close()

	store.Create("fresh-running")
	store.Create("fresh-done")
	store.Create("stale-done")

	recent := time.Now()
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Update("fresh-done", func(task *models.TaskStatus) {
		task.FinishedAt = &recent
	}))
	require.NoError(t, store.Update("stale-done", func(task *models.TaskStatus) {
		task.FinishedAt = &old
	}))

	store.evictExpired(time.Now())

	_, ok := store.Get("fresh-running")
	assert.True(t, ok, "未结束的任务不清理")
	_, ok = store.Get("fresh-done")
	assert.True(t, ok, "TTL 之内的任务不清理")
	_, ok = store.Get("stale-done")
	assert.False(t, ok, "超过 TTL 的已结束任务被清理")
}

func TestDelete(t *testing.T) {
	store := newTestStore()
	defer store.Close()

	store.Create("task-1")
	store.Delete("task-1")

	_, ok := store.Get("task-1")
	assert.False(t, ok)
}
