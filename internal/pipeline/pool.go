package pipeline

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// runBounded 把 n 个条目提交给固定大小的工作池并等待全部完成。
// handler 内的 panic 被捕获并记录，只丢弃该条目，不影响其余条目。
func runBounded(n, workers int, handler func(i int)) {
	if workers <= 0 {
		workers = 5
	}

	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			defer func() {
				if r := recover(); r != nil {
					log.Errorf("pipeline item %d panicked: %v", idx, r)
				}
			}()

			handler(idx)
		}(i)
	}

	wg.Wait()
}
