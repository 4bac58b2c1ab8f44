package handlers

import (
	"github.com/gin-gonic/gin"
)

// apiResponse is the JSON envelope every endpoint answers with.
type apiResponse struct {
	Success  bool           `json:"success"`
	Messages []string       `json:"messages"`
	Data     map[string]any `json:"data"`
}

func respondOK(c *gin.Context, data map[string]any) {
	respond(c, 200, true, nil, data)
}

func respondError(c *gin.Context, status int, messages ...string) {
	respond(c, status, false, messages, nil)
}

func respond(c *gin.Context, status int, success bool, messages []string, data map[string]any) {
	if messages == nil {
		messages = []string{}
	}
	if data == nil {
		data = map[string]any{}
	}
	c.JSON(status, apiResponse{
		Success:  success,
		Messages: messages,
		Data:     data,
	})
}
