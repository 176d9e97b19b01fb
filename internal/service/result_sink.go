package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/config"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/excel"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

// ResultSink 结果落地策略。内存模式什么都不存，下载时按需重新生成；
// 磁盘模式在任务完成时额外落盘一份。
type ResultSink interface {
	Save(taskID string, pairs []models.QAPair) (resultFile string, err error)
}

// NewResultSink 根据配置选择结果落地策略
func NewResultSink(cfg *config.Config) ResultSink {
	if cfg.Result.Mode == "disk" {
		return &diskSink{dir: cfg.Result.Dir}
	}
	return &memorySink{}
}

type memorySink struct{}

func (*memorySink) Save(string, []models.QAPair) (string, error) {
	return "", nil
}

type diskSink struct {
	dir string
}

func (s *diskSink) Save(taskID string, pairs []models.QAPair) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_cleaned_qa_pairs.xlsx", taskID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()

	if err := excel.WriteQAPairs(f, pairs); err != nil {
		return "", fmt.Errorf("write result file: %w", err)
	}
	return path, nil
}
