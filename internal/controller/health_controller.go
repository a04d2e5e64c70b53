package controller

import (
	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HealthController reports readiness, not just liveness: a replica that
// lost its store or database cannot issue or validate anything.
type HealthController struct {
	router   *gin.RouterGroup
	store    *service.StoreService
	database *service.DatabaseService
}

func NewHealthController(router *gin.RouterGroup, store *service.StoreService, database *service.DatabaseService) *HealthController {
	return &HealthController{
		router:   router,
		store:    store,
		database: database,
	}
}

func (controller *HealthController) SetupRoutes() {
	controller.router.GET("/health", controller.healthHandler)
	controller.router.HEAD("/health", controller.healthHandler)
}

func (controller *HealthController) healthHandler(c *gin.Context) {
	if err := controller.store.Ping(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed against the store")
		c.JSON(503, gin.H{
			"status":  "degraded",
			"message": "Store unreachable",
		})
		return
	}

	if err := controller.database.Ping(); err != nil {
		log.Error().Err(err).Msg("Health check failed against the database")
		c.JSON(503, gin.H{
			"status":  "degraded",
			"message": "Database unreachable",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "ok",
		"message": "Healthy",
	})
}
