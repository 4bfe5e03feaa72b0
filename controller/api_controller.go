package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/simstech/github-stats-service/config"
	"github.com/simstech/github-stats-service/model"
	"github.com/simstech/github-stats-service/service"
)

type APIController interface {
	GetStats(ctx *gin.Context)
	ListConfigs(ctx *gin.Context)
	TriggerRefresh(ctx *gin.Context)
}

type apiController struct {
	facade      *service.Facade
	coordinator *service.Coordinator
	config      config.Config
}

func NewAPIController(config config.Config, facade *service.Facade, coordinator *service.Coordinator) APIController {
	return apiController{
		facade:      facade,
		coordinator: coordinator,
		config:      config,
	}
}

// GetStats serves the public projection of the cached snapshot.
// Always answered from the store: this path never triggers a fetch, and the
// only error a consumer can see is a not-found.
func (s apiController) GetStats(c *gin.Context) {
	view, err := s.facade.Read(c.Param("profileId"))

	if err != nil {
		c.JSON(http.StatusNotFound, model.NewAPIError(model.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListConfigs returns {id, username, display_name} per profile for the
// page-builder snippet selector
func (s apiController) ListConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, s.facade.ListConfigs())
}

// TriggerRefresh is the endpoint the external scheduler (or a manual
// "sync now" action) invokes
func (s apiController) TriggerRefresh(c *gin.Context) {
	err := s.coordinator.Refresh(c.Request.Context(), c.Param("profileId"))

	if err != nil {
		c.JSON(statusForRefreshError(err), model.NewAPIError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "refreshed"})
}

func statusForRefreshError(err error) int {
	var rateLimitErr *model.RateLimitError
	var fatalErr *model.FatalError

	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRefreshInProgress):
		return http.StatusConflict
	case errors.As(err, &rateLimitErr):
		return http.StatusTooManyRequests
	case errors.As(err, &fatalErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
