package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gate-api/internal/middleware"
	"github.com/noah-isme/sma-gate-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextOperatorKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// operatorFromContext builds the audit context stamped onto registered
// events: the authenticated operator plus the station's user agent.
func operatorFromContext(c *gin.Context) models.OperatorContext {
	operator := models.OperatorContext{DeviceInfo: c.Request.UserAgent()}
	if claims := claimsFromContext(c); claims != nil {
		operator.OperatorID = claims.OperatorID
		operator.OperatorName = claims.FullName
	}
	return operator
}
