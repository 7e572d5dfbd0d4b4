package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sam-warren/cedhtools/internal/api/handlers"
	"github.com/sam-warren/cedhtools/internal/config"
)

func SetupRouter(cfg *config.Config, logger zerolog.Logger, statisticsHandler *handlers.StatisticsHandler, totalsHandler *handlers.TotalsHandler, rollupHandler *handlers.RollupHandler) *gin.Engine {
	router := gin.New()
	router.Use(Recovery())
	router.Use(RequestID(logger))

	frontendPath := cfg.Server.FrontendDistPath
	serveFrontend := frontendPath != "" && dirExists(frontendPath)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{RequestIDHeader}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.GET("/statistics", totalsHandler.GetDatabaseStatistics)

		commanders := api.Group("/commanders")
		{
			commanders.GET("", statisticsHandler.GetTopCommanders)
			commanders.GET("/statistics", statisticsHandler.GetCommanderStatistics)
			commanders.GET("/statistics/cards/:cardId", statisticsHandler.GetCardStatistics)
		}

		decks := api.Group("/decks")
		{
			decks.POST("/statistics", statisticsHandler.PostDeckStatistics)
			decks.GET("/:deckId/statistics", statisticsHandler.GetDeckStatistics)
		}

		rollups := api.Group("/rollups")
		{
			rollups.GET("/status", rollupHandler.GetStatus)
			rollups.POST("/refresh", AdminAuth(cfg.Server.AdminToken), rollupHandler.TriggerRefresh)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if serveFrontend {
		indexPath := filepath.Join(frontendPath, "index.html")

		router.Static("/assets", filepath.Join(frontendPath, "assets"))
		router.StaticFile("/favicon.ico", filepath.Join(frontendPath, "favicon.ico"))

		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.File(indexPath)
		})
	} else {
		router.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		})
	}

	return router
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
