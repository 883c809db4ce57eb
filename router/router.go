package router

import (
	"time"

	"github.com/castgate/handler"
	"github.com/castgate/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetupRouter(claim *handler.ClaimHandler, feedback *handler.FeedbackHandler, prediction *handler.PredictionHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	{
		c := api.Group("/claim")
		c.GET("/status", claim.Status)
		c.POST("/submit", claim.Submit)

		f := api.Group("/feedback")
		f.GET("/status", feedback.Status)
		f.GET("/entries", feedback.Entries)
		f.POST("/submit", feedback.Submit)

		p := api.Group("/prediction")
		p.GET("/status", prediction.Status)
		p.POST("/submit", prediction.Submit)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
