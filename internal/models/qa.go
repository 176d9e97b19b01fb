package models

// QAPair 从一个工单对话中抽取出的一条问答对
type QAPair struct {
	WorkOrderID string `json:"work_order_id"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
}
