package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

// TaskStore 进程内任务状态注册表
//
// Create/Get/Update all work on value snapshots: Update applies the mutator to
// a private copy and swaps the whole record in under the write lock, so a
// concurrent reader never observes a half-updated record.
type TaskStore interface {
	Create(id string) models.TaskStatus
	Get(id string) (models.TaskStatus, bool)
	Update(id string, mutate func(*models.TaskStatus)) error
	Delete(id string)
	Close()
}

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = fmt.Errorf("task not found")

// MemoryTaskStore is a mutex-guarded in-memory TaskStore with TTL eviction of
// finished tasks.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]models.TaskStatus

	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewMemoryTaskStore 创建内存任务注册表，并启动过期清理协程
func NewMemoryTaskStore(ttl, sweepInterval time.Duration) *MemoryTaskStore {
	s := &MemoryTaskStore{
		tasks: make(map[string]models.TaskStatus),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	if ttl > 0 && sweepInterval > 0 {
		go s.sweep(sweepInterval)
	}
	return s
}

// Create registers a fresh record for the given task ID.
func (s *MemoryTaskStore) Create(id string) models.TaskStatus {
	task := models.TaskStatus{
		ID:        id,
		Status:    models.StatusCreated,
		Progress:  0,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.tasks[id] = task
	s.mu.Unlock()

	return task
}

// Get returns a snapshot copy of the record.
func (s *MemoryTaskStore) Get(id string) (models.TaskStatus, bool) {
	s.mu.RLock()
	task, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return models.TaskStatus{}, false
	}
	return cloneTask(task), true
}

// Update applies mutate to a copy of the record and swaps it in atomically.
func (s *MemoryTaskStore) Update(id string, mutate func(*models.TaskStatus)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	next := cloneTask(task)
	mutate(&next)
	s.tasks[id] = next
	return nil
}

// Delete removes the record, if present.
func (s *MemoryTaskStore) Delete(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// Close stops the eviction goroutine.
func (s *MemoryTaskStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryTaskStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired(time.Now())
		}
	}
}

// evictExpired 清理结束时间早于 TTL 的任务
func (s *MemoryTaskStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, task := range s.tasks {
		if task.FinishedAt != nil && now.Sub(*task.FinishedAt) > s.ttl {
			delete(s.tasks, id)
		}
	}
}

// cloneTask copies the record including its slices, so snapshots never share
// backing arrays with the stored value.
func cloneTask(t models.TaskStatus) models.TaskStatus {
	c := t
	if t.CleanedQA != nil {
		c.CleanedQA = make([]models.QAPair, len(t.CleanedQA))
		copy(c.CleanedQA, t.CleanedQA)
	}
	if t.FinalQA != nil {
		c.FinalQA = make([]models.QAPair, len(t.FinalQA))
		copy(c.FinalQA, t.FinalQA)
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	return c
}
