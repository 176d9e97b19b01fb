package models

import "time"

// TaskStatus 一次上传任务的状态记录（轮询接口返回的数据）
//
// The record is stored by value in the task store; every mutation replaces the
// whole record under the store's lock, so readers always see a consistent
// snapshot. CleanedQA is only set once the task reaches TaskStatusCompleted,
// FinalQA only after a selection has been submitted.
type TaskStatus struct {
	ID       string  `json:"task_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	QACount  int     `json:"qa_count"`

	CleanedQA []QAPair `json:"cleaned_qa,omitempty"`
	FinalQA   []QAPair `json:"final_qa,omitempty"`

	// ResultFile 磁盘模式下保存的结果文件路径，内存模式为空
	ResultFile string `json:"result_file,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t *TaskStatus) Terminal() bool {
	return t.FinishedAt != nil
}

// 任务阶段状态文案，与前端展示保持一致
const (
	StatusCreated    = "任务已创建"
	StatusReading    = "开始读取Excel文件..."
	StatusGrouping   = "正在分组工单数据..."
	StatusSaving     = "正在保存结果..."
	StatusReadFailed = "读取Excel文件失败"
)
