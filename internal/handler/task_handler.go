package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/excel"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/repository"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/service"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TaskHandler handles HTTP requests for QA extraction tasks
type TaskHandler struct {
	service *service.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(service *service.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// Submit 上传工单记录表并创建任务
// POST /api/v1/tasks
func (h *TaskHandler) Submit(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "没有选择文件")
		return
	}

	apiKey := c.PostForm("api_key")

	f, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "读取上传文件失败")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.BadRequest(c, "读取上传文件失败")
		return
	}

	taskID, err := h.service.Submit(data, fileHeader.Filename, apiKey)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"task_id": taskID,
		"message": "文件上传成功，开始处理...",
	})
}

// Status 轮询任务状态
// GET /api/v1/tasks/:id/status
func (h *TaskHandler) Status(c *gin.Context) {
	task, ok := h.service.Status(c.Param("id"))
	if !ok {
		response.NotFound(c, "任务不存在")
		return
	}
	response.Success(c, task)
}

// Result 返回清洗后的 QA 对列表，供结果页勾选
// GET /api/v1/tasks/:id/result
func (h *TaskHandler) Result(c *gin.Context) {
	pairs, err := h.service.Result(c.Param("id"))
	if err != nil {
		h.resultError(c, err)
		return
	}
	response.Success(c, gin.H{
		"task_id": c.Param("id"),
		"qa_data": pairs,
	})
}

// Download 下载清洗结果表，内容按存储的 QA 对重新生成
// GET /api/v1/tasks/:id/download
func (h *TaskHandler) Download(c *gin.Context) {
	taskID := c.Param("id")
	pairs, err := h.service.Result(taskID)
	if err != nil {
		h.resultError(c, err)
		return
	}
	h.sendWorkbook(c, fmt.Sprintf("qa_pairs_%s.xlsx", taskID), pairs)
}

// SelectionRequest 结果筛选请求，selected 为 QA 对下标列表
type SelectionRequest struct {
	Selected []string `json:"selected"`
}

// Selection 按下标筛选最终数据集
// POST /api/v1/tasks/:id/selection
func (h *TaskHandler) Selection(c *gin.Context) {
	taskID := c.Param("id")

	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	if err := h.service.Select(taskID, req.Selected); err != nil {
		h.resultError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message":      "筛选完成",
		"download_url": fmt.Sprintf("/api/v1/tasks/%s/download_final", taskID),
	})
}

// DownloadFinal 下载筛选后的最终数据集
// GET /api/v1/tasks/:id/download_final
func (h *TaskHandler) DownloadFinal(c *gin.Context) {
	taskID := c.Param("id")
	pairs, err := h.service.FinalResult(taskID)
	if err != nil {
		h.resultError(c, err)
		return
	}
	h.sendWorkbook(c, fmt.Sprintf("final_qa_pairs_%s.xlsx", taskID), pairs)
}

func (h *TaskHandler) sendWorkbook(c *gin.Context, filename string, pairs []models.QAPair) {
	data, err := excel.EncodeQAPairs(pairs)
	if err != nil {
		response.InternalError(c, "生成结果文件失败")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *TaskHandler) resultError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrTaskNotFound) {
		response.NotFound(c, "任务不存在")
		return
	}
	response.Error(c, http.StatusBadRequest, err.Error())
}
