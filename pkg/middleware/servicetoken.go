package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/confsite/pkg/servicetoken"
)

// ServiceTokenAuth はx-service-tokenヘッダーのサービス間アサーションを検証する
// Ginミドルウェアを返す。内部APIを信頼できる呼び出し元に限定するために使用する。
// 検証に成功した場合、コンテキストに "service_issuer" を設定する。
func ServiceTokenAuth(verifier *servicetoken.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader(servicetoken.HeaderName)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "サービストークンが必要です",
			})
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "サービストークンが無効です",
			})
			return
		}

		c.Set("service_issuer", claims.Issuer)
		c.Next()
	}
}
