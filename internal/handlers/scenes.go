package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"slide2video/internal/models"
	"slide2video/internal/wizard"
)

// sceneOr404 writes a 404 and returns false when the scene does not exist.
func (h *WizardHandler) sceneOr404(c *gin.Context) (string, bool) {
	id := c.Param("scene_id")
	if _, ok := h.wiz.Snapshot().Scene(id); !ok {
		respondError(c, "scene not found", wizard.ErrSceneNotFound)
		return id, false
	}
	return id, true
}

func (h *WizardHandler) respondScene(c *gin.Context, id string) {
	scene, ok := h.wiz.Snapshot().Scene(id)
	if !ok {
		// reset between the operation and the read
		respondError(c, "scene not found", wizard.ErrSceneNotFound)
		return
	}
	c.JSON(http.StatusOK, scene)
}

// EditScene godoc
// @Summary     Edit one scene field
// @Tags        scenes
// @Accept      json
// @Produce     json
// @Param       scene_id path string true "Scene ID"
// @Param       request body models.EditSceneRequest true "Field and value"
// @Success     200 {object} wizard.Scene
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /wizard/scenes/{scene_id} [patch]
func (h *WizardHandler) EditScene(c *gin.Context) {
	id, ok := h.sceneOr404(c)
	if !ok {
		return
	}
	var req models.EditSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	if err := h.wiz.EditScene(id, req.Field, req.Value); err != nil {
		respondError(c, "invalid scene edit", err)
		return
	}
	h.respondScene(c, id)
}

func (h *WizardHandler) DismissSceneError(c *gin.Context) {
	id, ok := h.sceneOr404(c)
	if !ok {
		return
	}
	if err := h.wiz.DismissSceneError(id); err != nil {
		respondError(c, "failed to dismiss error", err)
		return
	}
	h.respondScene(c, id)
}

func (h *WizardHandler) RegenerateScene(c *gin.Context) {
	id := c.Param("scene_id")
	if _, err := h.wiz.RegenerateSceneImage(c.Request.Context(), id); err != nil {
		respondError(c, "failed to regenerate image", err)
		return
	}
	h.respondScene(c, id)
}

func (h *WizardHandler) AttachReference(c *gin.Context) {
	id := c.Param("scene_id")
	var req models.ReferenceImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	if err := h.wiz.AttachReferenceImageToScene(c.Request.Context(), id, req.ReferenceImageURL); err != nil {
		respondError(c, "failed to attach reference image", err)
		return
	}
	h.respondScene(c, id)
}

func (h *WizardHandler) UploadSceneImage(c *gin.Context) {
	id, ok := h.sceneOr404(c)
	if !ok {
		return
	}
	f, ok := readFormFile(c, "image")
	if !ok {
		return
	}
	if err := h.wiz.UploadLocalImageForScene(c.Request.Context(), id, f); err != nil {
		respondError(c, "failed to upload image", err)
		return
	}
	h.respondScene(c, id)
}
