package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/roster/internal/http/dto"
	"basegraph.app/roster/internal/service"
)

type ModelHandler struct {
	modelService service.ModelService
}

func NewModelHandler(modelService service.ModelService) *ModelHandler {
	return &ModelHandler{modelService: modelService}
}

func (h *ModelHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req service.CreateModelParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	m, err := h.modelService.Create(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create model", "error", err, "email", req.Email)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create model"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToModelResponse(m))
}

func (h *ModelHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	modelID, ok := parseModelID(c)
	if !ok {
		return
	}

	m, err := h.modelService.Get(ctx, modelID)
	if err != nil {
		if service.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get model", "error", err, "model_id", modelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get model"})
		return
	}

	c.JSON(http.StatusOK, dto.ToModelResponse(m))
}

func (h *ModelHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	modelID, ok := parseModelID(c)
	if !ok {
		return
	}

	var req service.UpdateModelParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	m, err := h.modelService.Update(ctx, modelID, req)
	if err != nil {
		if service.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to update model", "error", err, "model_id", modelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update model"})
		return
	}

	c.JSON(http.StatusOK, dto.ToModelResponse(m))
}

func parseModelID(c *gin.Context) (int64, bool) {
	modelID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
		return 0, false
	}
	return modelID, true
}
