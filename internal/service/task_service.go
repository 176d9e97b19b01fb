package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/config"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/excel"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/llm"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/pipeline"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/repository"
)

// 支持的上传文件扩展名
var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
}

// TaskService 任务编排器：提交后在后台协程里顺序执行
// 读表 -> 分组 -> 整理 -> 抽取 -> 清洗 -> 保存，并把进度写入任务注册表。
type TaskService struct {
	cfg   *config.Config
	store repository.TaskStore
	sink  ResultSink

	// newGateway 按任务的 API key 创建大模型客户端，测试时可替换
	newGateway func(apiKey string) pipeline.Gateway
}

// Option configures a TaskService.
type Option func(*TaskService)

// WithGatewayFactory 替换大模型客户端工厂（测试用）
func WithGatewayFactory(f func(apiKey string) pipeline.Gateway) Option {
	return func(s *TaskService) {
		s.newGateway = f
	}
}

// NewTaskService 创建任务编排器
func NewTaskService(cfg *config.Config, store repository.TaskStore, opts ...Option) *TaskService {
	s := &TaskService{
		cfg:   cfg,
		store: store,
		sink:  NewResultSink(cfg),
	}
	s.newGateway = func(apiKey string) pipeline.Gateway {
		return llm.NewClient(cfg.LLM.BaseURL, apiKey, cfg.Timeout(), cfg.LLM.MaxRetries, cfg.LLM.EnableThinking, cfg.LLM.Temperature)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit 校验输入并创建任务，立即返回任务 ID，流水线在后台执行。
func (s *TaskService) Submit(data []byte, filename, apiKey string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("只支持Excel文件格式 (.xlsx, .xls)")
	}

	if apiKey == "" {
		apiKey = os.Getenv("DASHSCOPE_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("请输入API密钥")
	}

	taskID := uuid.NewString()
	s.store.Create(taskID)

	go s.process(taskID, data, apiKey)

	return taskID, nil
}

// process 执行完整流水线。任何未捕获的异常都会把任务置为失败态，
// 不会让后台协程带着 panic 退出。
func (s *TaskService) process(taskID string, data []byte, apiKey string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("task %s panicked: %v", taskID, r)
			s.fail(taskID, fmt.Sprintf("处理过程中发生错误: %v", r))
		}
	}()

	ctx := context.Background()
	gateway := s.newGateway(apiKey)
	runner := pipeline.NewRunner(gateway, s.cfg.Pipeline.Workers,
		s.cfg.LLM.FormatModel, s.cfg.LLM.ExtractModel, s.cfg.LLM.ValidateModel)

	report := func(status string, progress float64) {
		if err := s.store.Update(taskID, func(t *models.TaskStatus) {
			t.Status = status
			t.Progress = progress
		}); err != nil {
			log.Warnf("task %s: update progress: %v", taskID, err)
		}
	}

	report(models.StatusReading, 0)
	rows, err := excel.ReadTranscripts(data)
	if err != nil {
		log.Errorf("task %s: read workbook: %v", taskID, err)
		s.fail(taskID, models.StatusReadFailed)
		return
	}

	report(models.StatusGrouping, 10)
	conversations := pipeline.GroupByWorkOrder(rows)

	report(fmt.Sprintf("共有 %d 个工单，开始格式化对话...", len(conversations)), 20)
	formatted := runner.FormatConversations(ctx, conversations, report)

	report("格式化完成，开始生成QA对...", 50)
	pairs := runner.ExtractQAPairs(ctx, formatted, report)

	report("开始清洗QA对...", 70)
	cleaned := runner.ValidateQAPairs(ctx, pairs, report)
	if cleaned == nil {
		// 零个QA对也算成功完成，下载得到只有表头的表格
		cleaned = []models.QAPair{}
	}

	report(models.StatusSaving, 90)
	resultFile, err := s.sink.Save(taskID, cleaned)
	if err != nil {
		log.Errorf("task %s: save result: %v", taskID, err)
		s.fail(taskID, fmt.Sprintf("保存结果失败: %v", err))
		return
	}

	now := time.Now()
	if err := s.store.Update(taskID, func(t *models.TaskStatus) {
		t.Status = fmt.Sprintf("处理完成！共生成 %d 个清洗后QA对", len(cleaned))
		t.Progress = 100
		t.QACount = len(cleaned)
		t.CleanedQA = cleaned
		t.ResultFile = resultFile
		t.FinishedAt = &now
	}); err != nil {
		log.Warnf("task %s: mark completed: %v", taskID, err)
	}
}

func (s *TaskService) fail(taskID, status string) {
	now := time.Now()
	if err := s.store.Update(taskID, func(t *models.TaskStatus) {
		t.Status = status
		t.Progress = 100
		t.FinishedAt = &now
	}); err != nil {
		log.Warnf("task %s: mark failed: %v", taskID, err)
	}
}

// Status 返回任务状态快照
func (s *TaskService) Status(taskID string) (models.TaskStatus, bool) {
	return s.store.Get(taskID)
}

// Result 返回已完成任务的清洗结果
func (s *TaskService) Result(taskID string) ([]models.QAPair, error) {
	task, ok := s.store.Get(taskID)
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if task.CleanedQA == nil {
		return nil, fmt.Errorf("清洗结果不可用")
	}
	return task.CleanedQA, nil
}

// Select 从清洗结果中按下标筛选出最终数据集。
// 非数字或越界的下标被静默忽略；这是一个纯同步操作，不触发模型调用。
func (s *TaskService) Select(taskID string, indices []string) error {
	task, ok := s.store.Get(taskID)
	if !ok {
		return repository.ErrTaskNotFound
	}
	if task.CleanedQA == nil {
		return fmt.Errorf("清洗结果不可用")
	}

	final := make([]models.QAPair, 0, len(indices))
	for _, raw := range indices {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(task.CleanedQA) {
			continue
		}
		final = append(final, task.CleanedQA[idx])
	}

	return s.store.Update(taskID, func(t *models.TaskStatus) {
		t.FinalQA = final
	})
}

// FinalResult 返回筛选后的最终数据集
func (s *TaskService) FinalResult(taskID string) ([]models.QAPair, error) {
	task, ok := s.store.Get(taskID)
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if task.FinalQA == nil {
		return nil, fmt.Errorf("最终数据不存在")
	}
	return task.FinalQA, nil
}
