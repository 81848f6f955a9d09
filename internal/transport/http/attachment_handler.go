package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/service"
	"filecargo/backend/internal/storage/filesystem"
)

// AttachmentHandler 附件查询与维护接口
type AttachmentHandler struct {
	attachments *service.AttachmentService
	sweeper     *service.Sweeper
	files       *filesystem.Store
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(attachments *service.AttachmentService, sweeper *service.Sweeper, files *filesystem.Store) *AttachmentHandler {
	return &AttachmentHandler{
		attachments: attachments,
		sweeper:     sweeper,
		files:       files,
	}
}

// AttachmentResponse 附件信息
type AttachmentResponse struct {
	ID               int64     `json:"id"`
	ParentType       string    `json:"parentType"`
	ParentID         int64     `json:"parentId"`
	Name             string    `json:"name"`
	Key              string    `json:"key"`
	Extension        string    `json:"extension"`
	OriginalFilename string    `json:"originalFilename"`
	Filename         string    `json:"filename"`
	URL              string    `json:"url,omitempty"`
	Exists           bool      `json:"exists"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toAttachmentResponse(att *filesystem.Attachment) AttachmentResponse {
	f := att.File()
	resp := AttachmentResponse{
		ID:               f.ID,
		ParentType:       f.ParentType,
		ParentID:         f.ParentID,
		Name:             f.Name,
		Key:              f.Key,
		Extension:        f.Extension,
		OriginalFilename: f.OriginalFilename,
		Exists:           att.Exists(),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
	resp.Filename, _ = att.Filename()
	// 未配置地址前缀时不返回 URL
	resp.URL, _ = att.URL()
	return resp
}

// parseOwner 从路径参数解析父实体
func parseOwner(c *gin.Context) (domain.Owner, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return domain.Owner{}, false
	}
	owner := domain.Owner{Type: c.Param("type"), ID: id}
	if err := domain.ValidateOwner(owner); err != nil {
		respondError(c, err)
		return domain.Owner{}, false
	}
	return owner, true
}

// List 列出父实体的全部附件
func (h *AttachmentHandler) List(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}

	attachments, err := h.attachments.LoadAll(owner)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]AttachmentResponse, 0, len(attachments))
	for _, att := range attachments {
		items = append(items, toAttachmentResponse(att))
	}
	Success(c, items)
}

// Get 获取单个附件信息
func (h *AttachmentHandler) Get(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}

	att, err := h.attachments.Load(owner, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toAttachmentResponse(att))
}

// Destroy 删除单个附件
func (h *AttachmentHandler) Destroy(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}

	att, err := h.attachments.Load(owner, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.attachments.Destroy(att); err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, "删除成功", gin.H{"removed": 1})
}

// DestroyAll 删除父实体的全部附件
func (h *AttachmentHandler) DestroyAll(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}

	count, err := h.attachments.DestroyAll(owner)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, "删除成功", gin.H{"removed": count})
}

// Sweep 清理指定父实体类型的孤儿文件，dryRun=true 时只报告
func (h *AttachmentHandler) Sweep(c *gin.Context) {
	parentType := c.Param("type")
	if err := domain.ValidateOwner(domain.Owner{Type: parentType, ID: 1}); err != nil {
		respondError(c, err)
		return
	}

	dryRun, err := strconv.ParseBool(c.DefaultQuery("dryRun", "false"))
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.sweeper.Sweep(c.Request.Context(), parentType, dryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, result)
}

// Stats 返回存储目录统计
func (h *AttachmentHandler) Stats(c *gin.Context) {
	stats, err := h.files.GetStorageStats()
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, stats)
}
