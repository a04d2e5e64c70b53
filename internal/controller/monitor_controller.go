package controller

import (
	"time"

	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type MonitorEventsQuery struct {
	TokenID      string `form:"token_id"`
	UserID       int64  `form:"user_id"`
	ClientKey    string `form:"client_key"`
	EventType    string `form:"event_type"`
	AbnormalType string `form:"abnormal_type"`
	AbnormalOnly bool   `form:"abnormal_only"`
	MinScore     int    `form:"min_score"`
	MaxScore     int    `form:"max_score"`
	From         int64  `form:"from"`
	To           int64  `form:"to"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

type MonitorController struct {
	Router *gin.RouterGroup
	Risk   *service.RiskService
}

func NewMonitorController(router *gin.RouterGroup, risk *service.RiskService) *MonitorController {
	return &MonitorController{
		Router: router,
		Risk:   risk,
	}
}

func (controller *MonitorController) SetupRoutes() {
	monitorGroup := controller.Router.Group("/monitor")
	monitorGroup.GET("/events", controller.eventsHandler)
	monitorGroup.GET("/stats", controller.statsHandler)
	monitorGroup.GET("/abnormal/:tokenId", controller.abnormalHandler)
}

func (controller *MonitorController) bindFilter(c *gin.Context) (service.EventFilter, bool) {
	var q MonitorEventsQuery

	if err := c.BindQuery(&q); err != nil {
		log.Debug().Err(err).Msg("Failed to bind monitor query")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return service.EventFilter{}, false
	}

	return service.EventFilter{
		TokenID:      q.TokenID,
		UserID:       q.UserID,
		ClientKey:    q.ClientKey,
		EventType:    q.EventType,
		AbnormalType: q.AbnormalType,
		AbnormalOnly: q.AbnormalOnly,
		MinScore:     q.MinScore,
		MaxScore:     q.MaxScore,
		From:         q.From,
		To:           q.To,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}, true
}

func (controller *MonitorController) eventsHandler(c *gin.Context) {
	filter, ok := controller.bindFilter(c)
	if !ok {
		return
	}

	events, total, err := controller.Risk.SearchEvents(filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status": 200,
		"total":  total,
		"events": events,
	})
}

func (controller *MonitorController) statsHandler(c *gin.Context) {
	filter, ok := controller.bindFilter(c)
	if !ok {
		return
	}

	stats, err := controller.Risk.Stats(filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, stats)
}

func (controller *MonitorController) abnormalHandler(c *gin.Context) {
	window := time.Hour
	if seconds, err := time.ParseDuration(c.DefaultQuery("window", "1h")); err == nil && seconds > 0 {
		window = seconds
	}

	usage, err := controller.Risk.DetectAbnormalUsage(c.Param("tokenId"), window)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, usage)
}
