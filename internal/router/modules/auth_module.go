package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/authd/internal/interface/http"
	"github.com/oksasatya/authd/internal/interface/middleware"
	"github.com/oksasatya/authd/pkg/helpers"
)

type AuthModule struct {
	Handler *handlers.AuthHandler
	JWT     *helpers.JWTManager
}

func NewAuthModule(h *handlers.AuthHandler, jwt *helpers.JWTManager) *AuthModule {
	return &AuthModule{Handler: h, JWT: jwt}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/register", m.Handler.Register)
	rg.POST("/auth/login", m.Handler.Login)
	rg.POST("/auth/refresh-token", m.Handler.RefreshToken)
	rg.GET("/auth/verify-email/:token", m.Handler.VerifyEmail)
	rg.POST("/auth/forgot-password", m.Handler.ForgotPassword)
	rg.POST("/auth/reset-password/:token", m.Handler.ResetPassword)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.JWT))
	{
		auth.POST("/auth/logout", m.Handler.Logout)
		auth.POST("/auth/resend-email-verification", m.Handler.ResendEmailVerification)
		auth.POST("/auth/change-password", m.Handler.ChangePassword)
		auth.GET("/auth/current-user", m.Handler.CurrentUser)
		auth.PATCH("/auth/avatar", m.Handler.UploadAvatar)
		auth.GET("/auth/users/search", m.Handler.Search)
	}
}
