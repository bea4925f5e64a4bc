package response

import "github.com/gin-gonic/gin"

const (
	CodeSuccess = 0
)

const (
	ErrUnauthorized = 10001
)

const (
	ErrServerNotFound = 20001
	ErrServerExists   = 20002
)

const (
	ErrBadRequest = 40001
)

const (
	ErrInternal = 99999
)

type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func Success(c *gin.Context, data any) {
	c.JSON(200, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus, appCode int, message string) {
	c.JSON(httpStatus, Response{
		Code:    appCode,
		Message: message,
	})
}
