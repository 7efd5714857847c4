package async

import (
	"context"
	"sync"
	"time"

	"shopadmin/pkg/logger"

	"github.com/google/uuid"
)

// Task 表示一个异步任务
type Task struct {
	ID       string
	Name     string
	Handler  func(ctx context.Context) error
	Timeout  time.Duration
	RetryMax int
}

// Worker 异步任务处理器
type Worker struct {
	taskQueue chan Task
	logger    *logger.Logger
	wg        sync.WaitGroup
	mu        sync.RWMutex
	stopped   bool
	// backoff 重试间隔基数
	backoff time.Duration
}

// NewWorker 创建一个新的工作器
func NewWorker(queueSize int, logger *logger.Logger) *Worker {
	return &Worker{
		taskQueue: make(chan Task, queueSize),
		logger:    logger,
		backoff:   time.Second,
	}
}

// Start 启动工作器
func (w *Worker) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.processTask()
	}
}

// Stop 停止接收任务，等待队列中的任务处理完
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.taskQueue)
	w.mu.Unlock()
	w.wg.Wait()
}

// Submit 提交任务，队列已满或已停止时丢弃并返回 false
func (w *Worker) Submit(task Task) bool {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}
	select {
	case w.taskQueue <- task:
		return true
	default:
		w.logger.Warn("异步任务队列已满，任务被丢弃", "task_id", task.ID, "task", task.Name)
		return false
	}
}

// processTask 处理任务的工作循环
func (w *Worker) processTask() {
	defer w.wg.Done()

	for task := range w.taskQueue {
		w.executeTask(task)
	}
}

// executeTask 执行单个任务，每次尝试单独计算超时
func (w *Worker) executeTask(task Task) {
	start := time.Now()

	var err error
	for attempt := 0; attempt <= task.RetryMax; attempt++ {
		if attempt > 0 {
			w.logger.Info("Retrying task", "task_id", task.ID, "task", task.Name, "attempt", attempt)
			time.Sleep(w.backoff * time.Duration(attempt)) // 简单的退避策略
		}

		err = w.run(task)
		if err == nil {
			break
		}

		w.logger.Warn("Task execution failed", "task_id", task.ID, "task", task.Name, "attempt", attempt, "error", err)
	}

	if err != nil {
		w.logger.Error("Async task failed", "task_id", task.ID, "task", task.Name, "error", err)
		return
	}
	w.logger.Debug("Async task completed", "task_id", task.ID, "task", task.Name, "duration", time.Since(start))
}

func (w *Worker) run(task Task) error {
	ctx := context.Background()
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	return task.Handler(ctx)
}
