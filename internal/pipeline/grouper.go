// Package pipeline 实现工单 QA 抽取流水线：分组 -> 整理 -> 抽取 -> 清洗
package pipeline

import (
	"sort"
	"strings"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

// GroupByWorkOrder 按工单 ID 分组对话内容。
// 行先按 (work_order_id, created_at) 稳定排序，保证每个工单内的消息
// 按时间递增；内容为空或说话人缺失的行被跳过。
// created_at 按字符串字典序比较，要求单元格使用 ISO 风格时间
// （如 2024-01-02 09:00:00），其他日期格式的字典序与时间序不一致。
func GroupByWorkOrder(rows []models.TranscriptRow) map[string][]models.Message {
	sorted := make([]models.TranscriptRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].WorkOrderID != sorted[j].WorkOrderID {
			return sorted[i].WorkOrderID < sorted[j].WorkOrderID
		}
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})

	workOrders := make(map[string][]models.Message)
	for _, row := range sorted {
		// 跳过空内容或 AI 回复（oa_user_name 为空）
		if strings.TrimSpace(row.Content) == "" || row.SpeakerName == "" {
			continue
		}
		workOrders[row.WorkOrderID] = append(workOrders[row.WorkOrderID], models.Message{
			Speaker: row.SpeakerName,
			Content: row.Content,
		})
	}

	return workOrders
}
