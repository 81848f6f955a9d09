package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/storage"
)

// errorMapping 业务错误 -> HTTP 状态码与中文消息
type errorMapping struct {
	err    error
	status int
	msg    string
}

var errorMappings = []errorMapping{
	{storage.ErrFileNotFound, http.StatusNotFound, MsgFileNotFound},
	{storage.ErrDuplicateSlot, http.StatusConflict, "该位置已存在附件"},
	{domain.ErrInvalidOwnerType, http.StatusBadRequest, "父实体类型格式无效"},
	{domain.ErrInvalidOwnerID, http.StatusBadRequest, "父实体主键无效"},
	{domain.ErrInvalidSlotName, http.StatusBadRequest, "附件名称格式无效"},
	{domain.ErrURLPrefixNotConfigured, http.StatusUnprocessableEntity, "未配置公开访问地址前缀"},
	{domain.ErrIdentityMissing, http.StatusUnprocessableEntity, "附件尚未保存"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return err.Error()
}

// respondError 按错误类型选择响应，未知错误记为 500
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			Error(c, m.status, m.msg)
			return
		}
	}
	_ = c.Error(err)
	InternalError(c, MsgInternalError)
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgFileNotFound   = "附件不存在"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)
