package response

import "github.com/gin-gonic/gin"

const (
	MsgUnauthorized   = "authentication required"
	MsgInvalidJSON    = "Invalid JSON"
	MsgNoFile         = "No file received"
	MsgNoDocuments    = "No relevant documents found"
	MsgInternal       = "An error occurred"
	MsgUploadFailed   = "failed to process PDF"
	MsgRateLimited    = "rate limit exceeded"
	MsgMethodNotAllow = "method not allowed"
)

type ErrorBody struct {
	Error string `json:"error"`
}

type StatusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AskBody is the answer envelope for /get-value/.
type AskBody struct {
	Msg      string `json:"msg"`
	Res      string `json:"res"`
	Model    string `json:"model"`
	Degraded bool   `json:"degraded,omitempty"`
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{Error: message})
}

func AbortError(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{Error: message})
}

func Status(c *gin.Context, httpStatus int, status, message string) {
	c.JSON(httpStatus, StatusBody{Status: status, Message: message})
}
