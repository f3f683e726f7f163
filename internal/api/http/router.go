package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(chatController *ChatController, pollController *PollController) *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))

	api := router.Group("/api/v1/chat")

	api.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "Chat service is running"})
	})

	if chatController != nil {
		api.GET("/ws", chatController.Connect)
		api.GET("/history/:meetingID", chatController.History)
	}

	if pollController != nil {
		poll := api.Group("/poll")
		poll.POST("/connect", pollController.Connect)
		poll.GET("/:connID/events", pollController.Events)
		poll.POST("/:connID/emit", pollController.Emit)
		poll.DELETE("/:connID", pollController.Disconnect)
	}

	return router
}
