package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/config"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/pipeline"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/repository"
)

// stubGateway 按模型名区分阶段的打桩网关
type stubGateway struct {
	format   func(userPrompt string) (string, error)
	extract  func(userPrompt string) (string, error)
	validate func(userPrompt string) (string, error)
}

func (g *stubGateway) Call(_ context.Context, model, _, userPrompt string) (string, error) {
	switch model {
	case "fmt-model":
		return g.format(userPrompt)
	case "ext-model":
		return g.extract(userPrompt)
	case "val-model":
		return g.validate(userPrompt)
	}
	return "", fmt.Errorf("unexpected model %s", model)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LLM.FormatModel = "fmt-model"
	cfg.LLM.ExtractModel = "ext-model"
	cfg.LLM.ValidateModel = "val-model"
	cfg.LLM.MaxRetries = 1
	cfg.Pipeline.Workers = 3
	cfg.Result.Mode = "memory"
	return cfg
}

func newTestService(t *testing.T, gw pipeline.Gateway) (*TaskService, *repository.MemoryTaskStore) {
	t.Helper()
	store := repository.NewMemoryTaskStore(0, 0)
	t.Cleanup(store.Close)

	s := NewTaskService(testConfig(t), store,
		WithGatewayFactory(func(string) pipeline.Gateway { return gw }))
	return s, store
}

// buildTranscriptWorkbook 构造输入表：WO-1 有效，WO-2 只有空内容行
func buildTranscriptWorkbook(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	rows := [][]interface{}{
		{"work_order_id", "created_at", "content", "oa_user_name"},
		{"WO-1", "2024-01-01 10:00:00", "系统登录报错", "张三"},
		{"WO-1", "2024-01-01 10:05:00", "清理缓存后重试", "运维小李"},
		{"WO-2", "2024-01-02 09:00:00", "", "王五"},
		{"WO-2", "2024-01-02 09:01:00", "   ", "王五"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func waitForTerminal(t *testing.T, store repository.TaskStore, taskID string) models.TaskStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := store.Get(taskID)
		require.True(t, ok)
		if task.Terminal() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal state")
	return models.TaskStatus{}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "")
	s, _ := newTestService(t, &stubGateway{})

	_, err := s.Submit([]byte("x"), "transcript.csv", "key")
	assert.Error(t, err, "不支持的扩展名同步拒绝")

	_, err = s.Submit([]byte("x"), "transcript.xlsx", "")
	assert.Error(t, err, "缺少 API 密钥同步拒绝")
}

func TestSubmitFallsBackToEnvKey(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "env-key")
	gw := &stubGateway{
		format:   func(string) (string, error) { return "", fmt.Errorf("noop") },
		extract:  func(string) (string, error) { return "", fmt.Errorf("noop") },
		validate: func(string) (string, error) { return "", fmt.Errorf("noop") },
	}
	s, store := newTestService(t, gw)

	taskID, err := s.Submit(buildTranscriptWorkbook(t), "transcript.xlsx", "")
	require.NoError(t, err)
	waitForTerminal(t, store, taskID)
}

func TestProcessEndToEnd(t *testing.T) {
	gw := &stubGateway{
		format: func(userPrompt string) (string, error) {
			// 只有 WO-1 会走到这一步，WO-2 的行在分组时被过滤掉
			assert.Contains(t, userPrompt, "系统登录报错")
			return "User: 系统登录报错\nStaff: 清理缓存后重试", nil
		},
		extract: func(string) (string, error) {
			return `说明文字 {"qa_pairs":[
				{"question":"登录报错怎么办","answer":"清理缓存后重试"},
				{"question":"need-reject","answer":"x"},
				{"question":"second-keep","answer":"y"}]} 结尾`, nil
		},
		validate: func(userPrompt string) (string, error) {
			if strings.Contains(userPrompt, "need-reject") {
				return "no", nil
			}
			return "Yes", nil
		},
	}
	s, store := newTestService(t, gw)

	taskID, err := s.Submit(buildTranscriptWorkbook(t), "transcript.xlsx", "sk-test")
	require.NoError(t, err)

	task := waitForTerminal(t, store, taskID)

	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, 2, task.QACount)
	require.Len(t, task.CleanedQA, 2)
	assert.Contains(t, task.Status, "处理完成")
	for _, qa := range task.CleanedQA {
		assert.Equal(t, "WO-1", qa.WorkOrderID)
		assert.NotEqual(t, "need-reject", qa.Question)
	}
}

func TestProcessCompletesWithZeroSurvivors(t *testing.T) {
	// 清洗阶段全部判 no：任务仍算成功完成，结果是空集而不是错误
	gw := &stubGateway{
		format: func(string) (string, error) { return "formatted", nil },
		extract: func(string) (string, error) {
			return `{"qa_pairs":[{"question":"q","answer":"a"}]}`, nil
		},
		validate: func(string) (string, error) { return "no", nil },
	}
	s, store := newTestService(t, gw)

	taskID, err := s.Submit(buildTranscriptWorkbook(t), "transcript.xlsx", "sk-test")
	require.NoError(t, err)

	task := waitForTerminal(t, store, taskID)

	assert.Contains(t, task.Status, "处理完成")
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, 0, task.QACount)
	require.NotNil(t, task.CleanedQA)
	assert.Empty(t, task.CleanedQA)

	result, err := s.Result(taskID)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestProcessReadFailure(t *testing.T) {
	s, store := newTestService(t, &stubGateway{})

	taskID, err := s.Submit([]byte("definitely not a workbook"), "broken.xlsx", "sk-test")
	require.NoError(t, err, "提交本身成功，失败通过轮询可见")

	task := waitForTerminal(t, store, taskID)

	assert.Equal(t, models.StatusReadFailed, task.Status)
	assert.Equal(t, 100.0, task.Progress)
	assert.Nil(t, task.CleanedQA)
}

func TestSelectFiltersIndices(t *testing.T) {
	s, store := newTestService(t, &stubGateway{})
	taskID := "task-select"
	store.Create(taskID)
	require.NoError(t, store.Update(taskID, func(task *models.TaskStatus) {
		task.CleanedQA = []models.QAPair{
			{WorkOrderID: "WO-1", Question: "q0", Answer: "a0"},
			{WorkOrderID: "WO-1", Question: "q1", Answer: "a1"},
			{WorkOrderID: "WO-2", Question: "q2", Answer: "a2"},
		}
	}))

	require.NoError(t, s.Select(taskID, []string{"0", "2", "x"}))

	final, err := s.FinalResult(taskID)
	require.NoError(t, err)
	require.Len(t, final, 2)
	assert.Equal(t, "q0", final[0].Question)
	assert.Equal(t, "q2", final[1].Question)
}

func TestSelectRequiresCompletedTask(t *testing.T) {
	s, store := newTestService(t, &stubGateway{})

	assert.ErrorIs(t, s.Select("missing", nil), repository.ErrTaskNotFound)

	store.Create("pending")
	assert.Error(t, s.Select("pending", []string{"0"}), "清洗结果未就绪时筛选报错")
}

func TestResultIsStableAcrossCalls(t *testing.T) {
	s, store := newTestService(t, &stubGateway{})
	taskID := "task-stable"
	store.Create(taskID)
	require.NoError(t, store.Update(taskID, func(task *models.TaskStatus) {
		task.CleanedQA = []models.QAPair{{WorkOrderID: "WO-1", Question: "q", Answer: "a"}}
	}))

	first, err := s.Result(taskID)
	require.NoError(t, err)
	second, err := s.Result(taskID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDiskSinkWritesResultFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Result.Mode = "disk"
	cfg.Result.Dir = dir

	store := repository.NewMemoryTaskStore(0, 0)
	t.Cleanup(store.Close)
	gw := &stubGateway{
		format:   func(string) (string, error) { return "formatted", nil },
		extract:  func(string) (string, error) { return `{"qa_pairs":[{"question":"q","answer":"a"}]}`, nil },
		validate: func(string) (string, error) { return "yes", nil },
	}
	s := NewTaskService(cfg, store,
		WithGatewayFactory(func(string) pipeline.Gateway { return gw }))

	taskID, err := s.Submit(buildTranscriptWorkbook(t), "transcript.xlsx", "sk-test")
	require.NoError(t, err)

	task := waitForTerminal(t, store, taskID)

	expected := filepath.Join(dir, fmt.Sprintf("%s_cleaned_qa_pairs.xlsx", taskID))
	assert.Equal(t, expected, task.ResultFile)
	_, err = os.Stat(expected)
	assert.NoError(t, err)
}
