package handler

import "github.com/gin-gonic/gin"

// RegisterUserRoutes registers all user-related routes. auth guards every route.
func RegisterUserRoutes(router *gin.RouterGroup, handler *UserHandler, auth gin.HandlerFunc) {
	users := router.Group("/users", auth)
	{
		users.GET("/me", handler.GetMe)
		users.PUT("/me", handler.UpdateMe)
	}
}
