package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		students := v1.Group("/students")
		{
			students.GET("", handler.ListStudents)
			students.POST("", handler.AddStudent)
			students.GET("/:id", handler.GetStudent)
			students.DELETE("/:id", handler.DeleteStudent)
			students.POST("/:id/sync", handler.SyncStudent)
			students.GET("/:id/contests", handler.GetContests)
			students.GET("/:id/problem-stats", handler.GetProblemStats)
		}

		sync := v1.Group("/sync")
		{
			sync.GET("/settings", handler.GetSyncSettings)
			sync.PUT("/settings", handler.UpdateSyncSettings)
			sync.POST("/trigger", handler.TriggerSync)
		}

		v1.GET("/reminders/candidates", handler.ReminderCandidates)
		v1.POST("/rosters", handler.UploadRoster)
	}
}
