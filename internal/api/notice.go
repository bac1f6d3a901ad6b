package api

import (
	"github.com/gin-gonic/gin"
)

// Notice levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice is a transient message for the dashboard, dismissed by the client
// after DismissAfterMs.
type Notice struct {
	Level          string `json:"level"`
	Message        string `json:"message"`
	DismissAfterMs int64  `json:"dismissAfterMs"`
}

type noticeResponse struct {
	Notice Notice `json:"notice"`
}

func (h *Handler) newNotice(level, message string) Notice {
	return Notice{Level: level, Message: message, DismissAfterMs: h.noticeAfter.Milliseconds()}
}

// respondNotice aborts the request with a notice body.
func (h *Handler) respondNotice(c *gin.Context, status int, level, message string) {
	c.AbortWithStatusJSON(status, noticeResponse{Notice: h.newNotice(level, message)})
}
