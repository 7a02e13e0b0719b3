package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/confsite/pkg/httpclient"
)

// maxRequestIDLength は受け入れるリクエストIDの最大長。
const maxRequestIDLength = 128

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// X-Request-IDヘッダーがあればそれを使い、無ければUUIDを生成する。
// IDはレスポンスヘッダーとリクエストのcontext.Contextの両方に設定され、
// httpclient経由の内部サービス呼び出しに伝播する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(httpclient.HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header(httpclient.HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(httpclient.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}
