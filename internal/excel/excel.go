// Package excel 负责工单聊天记录表的读取和 QA 结果表的生成
package excel

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

// 输入表必须包含的列
const (
	ColWorkOrderID = "work_order_id"
	ColCreatedAt   = "created_at"
	ColContent     = "content"
	ColSpeaker     = "oa_user_name"
)

var requiredColumns = []string{ColWorkOrderID, ColCreatedAt, ColContent, ColSpeaker}

// ReadTranscripts 从 xlsx 字节流中读取聊天记录行。
// 缺少必需列时整体失败，不做部分解析。
func ReadTranscripts(data []byte) ([]models.TranscriptRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	// 表头行 -> 列下标
	colIndex := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		colIndex[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	cell := func(row []string, col string) string {
		idx := colIndex[col]
		if idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	transcripts := make([]models.TranscriptRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		transcripts = append(transcripts, models.TranscriptRow{
			WorkOrderID: cell(row, ColWorkOrderID),
			CreatedAt:   cell(row, ColCreatedAt),
			Content:     cell(row, ColContent),
			SpeakerName: cell(row, ColSpeaker),
		})
	}

	return transcripts, nil
}

// WriteQAPairs 生成结果表并写入 w。没有数据时仍然输出表头行。
func WriteQAPairs(w io.Writer, pairs []models.QAPair) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	header := []interface{}{ColWorkOrderID, "question", "answer"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, qa := range pairs {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i+2, err)
		}
		row := []interface{}{qa.WorkOrderID, qa.Question, qa.Answer}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// EncodeQAPairs 生成结果表字节流，供下载接口按需重新生成
func EncodeQAPairs(pairs []models.QAPair) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteQAPairs(&buf, pairs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
