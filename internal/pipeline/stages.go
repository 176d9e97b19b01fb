package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

// Gateway 大模型调用接口（internal/llm.Client 实现）
type Gateway interface {
	Call(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// ProgressFunc 把阶段内的进度写回任务状态
type ProgressFunc func(status string, progress float64)

// 各阶段在 0-100 总进度上的区间
const (
	formatBase, formatSpan     = 20.0, 30.0
	extractBase, extractSpan   = 50.0, 20.0
	validateBase, validateSpan = 70.0, 20.0
)

// Runner 按工单并发执行三个大模型阶段，工作池大小固定
type Runner struct {
	gateway Gateway
	workers int

	formatModel   string
	extractModel  string
	validateModel string
}

// NewRunner 创建阶段执行器
func NewRunner(gateway Gateway, workers int, formatModel, extractModel, validateModel string) *Runner {
	return &Runner{
		gateway:       gateway,
		workers:       workers,
		formatModel:   formatModel,
		extractModel:  extractModel,
		validateModel: validateModel,
	}
}

// FormatConversations 整理阶段：每个工单调用一次模型，把原始对话整理成
// User/Staff 角色文本。模型没有返回可用文本的工单被跳过。
func (r *Runner) FormatConversations(ctx context.Context, conversations map[string][]models.Message, report ProgressFunc) map[string]string {
	formatted := make(map[string]string, len(conversations))
	total := len(conversations)

	var mu sync.Mutex
	completed := 0

	workIDs := make([]string, 0, total)
	for workID := range conversations {
		workIDs = append(workIDs, workID)
	}

	runBounded(total, r.workers, func(i int) {
		workID := workIDs[i]

		text, err := r.gateway.Call(ctx, r.formatModel, formatSystemPrompt, formatPrompt(conversations[workID]))
		if err != nil {
			log.Warnf("format work order %s: %v", workID, err)
		}

		mu.Lock()
		defer mu.Unlock()
		if err == nil && text != "" {
			formatted[workID] = text
		}
		completed++
		report(fmt.Sprintf("正在格式化工单 %s (%d/%d)", workID, completed, total),
			formatBase+float64(completed)/float64(total)*formatSpan)
	})

	return formatted
}

// ExtractQAPairs 抽取阶段：每个整理后的工单文本调用一次模型，从应答中
// 截取第一个 { 到最后一个 } 之间的 JSON 并解析 qa_pairs。解析失败的工单
// 不产生 QA 对，也不中断其余工单。
func (r *Runner) ExtractQAPairs(ctx context.Context, formatted map[string]string, report ProgressFunc) []models.QAPair {
	var pairs []models.QAPair
	total := len(formatted)

	var mu sync.Mutex
	completed := 0

	workIDs := make([]string, 0, total)
	for workID := range formatted {
		workIDs = append(workIDs, workID)
	}

	runBounded(total, r.workers, func(i int) {
		workID := workIDs[i]

		var extracted []models.QAPair
		text, err := r.gateway.Call(ctx, r.extractModel, extractSystemPrompt, extractPrompt(formatted[workID]))
		if err != nil {
			log.Warnf("extract work order %s: %v", workID, err)
		} else {
			extracted = parseQAResponse(workID, text)
		}

		mu.Lock()
		defer mu.Unlock()
		pairs = append(pairs, extracted...)
		completed++
		report(fmt.Sprintf("正在处理工单 %s (%d/%d)", workID, completed, total),
			extractBase+float64(completed)/float64(total)*extractSpan)
	})

	return pairs
}

// ValidateQAPairs 清洗阶段：逐条让模型做 yes/no 判定，只保留应答为
// yes（不区分大小写）的 QA 对，其余静默丢弃。
func (r *Runner) ValidateQAPairs(ctx context.Context, pairs []models.QAPair, report ProgressFunc) []models.QAPair {
	var cleaned []models.QAPair
	total := len(pairs)

	var mu sync.Mutex
	completed := 0

	runBounded(total, r.workers, func(i int) {
		qa := pairs[i]

		resp, err := r.gateway.Call(ctx, r.validateModel, validateSystemPrompt, validatePrompt(qa))
		keep := err == nil && strings.EqualFold(strings.TrimSpace(resp), "yes")

		mu.Lock()
		defer mu.Unlock()
		if keep {
			cleaned = append(cleaned, qa)
		}
		completed++
		report(fmt.Sprintf("正在清洗QA对 (%d/%d)", completed, total),
			validateBase+float64(completed)/float64(total)*validateSpan)
	})

	return cleaned
}

// parseQAResponse 从模型应答文本中截取 JSON 并解析 QA 对
func parseQAResponse(workID, text string) []models.QAPair {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		log.Errorf("work order %s: response contains no JSON object", workID)
		return nil
	}

	var data struct {
		QAPairs []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"qa_pairs"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
		log.Errorf("work order %s: parse QA JSON: %v", workID, err)
		return nil
	}

	pairs := make([]models.QAPair, 0, len(data.QAPairs))
	for _, qa := range data.QAPairs {
		pairs = append(pairs, models.QAPair{
			WorkOrderID: workID,
			Question:    qa.Question,
			Answer:      qa.Answer,
		})
	}
	return pairs
}
