package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the taker's latest
// login in Redis. A request carrying an older token is rejected, so an exam
// cannot be driven from two devices at once.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Only enforce for exam takers.
		if claims.Role != model.RoleStudent {
			c.Next()
			return
		}

		if err := authService.ValidateDeviceSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			if !errors.Is(err, service.ErrSessionInvalidated) {
				log.Error().Err(err).Int("user_id", claims.UserID).Msg("Device session check failed")
				response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
				return
			}
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
