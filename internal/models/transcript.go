package models

// TranscriptRow 工单聊天记录表的一行（对应 Excel 导出的一条消息）
type TranscriptRow struct {
	WorkOrderID string `json:"work_order_id"`
	CreatedAt   string `json:"created_at"`
	Content     string `json:"content"`
	SpeakerName string `json:"oa_user_name"`
}

// Message is a single surviving chat message after grouping, in created_at order.
type Message struct {
	Speaker string `json:"user"`
	Content string `json:"content"`
}
