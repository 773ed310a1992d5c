package middleware

import "github.com/gin-gonic/gin"

// GetOperator returns the token subject set by JWTMiddleware.
func GetOperator(c *gin.Context) (string, bool) {
	v, exists := c.Get(operatorKey)
	if !exists {
		return "", false
	}
	op, ok := v.(string)
	return op, ok
}
