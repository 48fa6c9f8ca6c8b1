package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"slide2video/internal/events"
	"slide2video/internal/models"
	"slide2video/internal/wizard"
)

// Form uploads are read into memory up to this size; the wizard applies the
// real per-kind limits.
const maxFormFileBytes = 32 << 20

type WizardHandler struct {
	wiz    *wizard.Wizard
	hub    *events.Hub
	logger *slog.Logger

	// ctx outlives single requests; storyboard and video jobs run under it.
	ctx  context.Context
	jobs sync.WaitGroup
}

func NewWizardHandler(ctx context.Context, wiz *wizard.Wizard, hub *events.Hub, logger *slog.Logger) *WizardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WizardHandler{wiz: wiz, hub: hub, logger: logger, ctx: ctx}
}

// Register mounts the wizard routes on r.
func (h *WizardHandler) Register(r gin.IRouter) {
	r.GET("/state", h.GetState)
	r.POST("/reset", h.Reset)
	r.POST("/deck", h.UploadDeck)
	r.POST("/extract", h.Extract)
	r.POST("/storyboard", h.GenerateStoryboard)
	r.GET("/storyboard/export", h.ExportStoryboard)

	r.PATCH("/scenes/:scene_id", h.EditScene)
	r.DELETE("/scenes/:scene_id/error", h.DismissSceneError)
	r.POST("/scenes/:scene_id/regenerate", h.RegenerateScene)
	r.POST("/scenes/:scene_id/reference", h.AttachReference)
	r.POST("/scenes/:scene_id/image", h.UploadSceneImage)

	r.POST("/logo", h.UploadLogo)
	r.DELETE("/logo", h.RemoveLogo)
	r.POST("/zoom", h.Zoom)
	r.PUT("/settings", h.UpdateSettings)
	r.GET("/catalog", h.GetCatalog)

	r.POST("/video", h.GenerateVideo)
	r.GET("/events", h.Events)
}

// Wait blocks until background jobs have returned.
func (h *WizardHandler) Wait() {
	h.jobs.Wait()
}

func (h *WizardHandler) background(name string, fn func(ctx context.Context) error) {
	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		if err := fn(h.ctx); err != nil && !errors.Is(err, wizard.ErrSuperseded) {
			h.logger.Warn("background job failed", "job", name, "error", err)
		}
	}()
}

// GetState godoc
// @Summary     Current wizard state
// @Tags        wizard
// @Produce     json
// @Success     200 {object} wizard.State
// @Router      /wizard/state [get]
func (h *WizardHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.wiz.Snapshot())
}

func (h *WizardHandler) Reset(c *gin.Context) {
	h.wiz.Reset()
	c.JSON(http.StatusOK, h.wiz.Snapshot())
}

// UploadDeck godoc
// @Summary     Stage and upload a PowerPoint deck
// @Description Validates the deck locally, resets the wizard, and uploads it.
// @Tags        wizard
// @Accept      multipart/form-data
// @Produce     json
// @Param       file formData file true "PowerPoint deck (.ppt/.pptx, < 10MB)"
// @Success     200 {object} wizard.State
// @Failure     400 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /wizard/deck [post]
func (h *WizardHandler) UploadDeck(c *gin.Context) {
	f, ok := readFormFile(c, "file")
	if !ok {
		return
	}
	if err := h.wiz.ValidateAndStageFile(f); err != nil {
		respondError(c, "invalid deck", err)
		return
	}
	if err := h.wiz.UploadStagedFile(c.Request.Context()); err != nil {
		respondError(c, "failed to upload deck", err)
		return
	}
	c.JSON(http.StatusOK, h.wiz.Snapshot())
}

func (h *WizardHandler) Extract(c *gin.Context) {
	if err := h.wiz.ExtractContent(c.Request.Context()); err != nil {
		respondError(c, "failed to extract content", err)
		return
	}
	c.JSON(http.StatusOK, h.wiz.Snapshot())
}

// GenerateStoryboard godoc
// @Summary     Generate scenes and their images
// @Description Starts storyboard generation in the background. Progress is reported on /events.
// @Tags        wizard
// @Produce     json
// @Success     202 {object} models.AcceptedResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /wizard/storyboard [post]
func (h *WizardHandler) GenerateStoryboard(c *gin.Context) {
	st := h.wiz.Snapshot()
	if st.Extraction == nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "nothing to generate", Message: "extract the deck first"})
		return
	}
	if st.IsGeneratingScenes || st.IsGeneratingImages {
		respondError(c, "storyboard generation in progress", wizard.ErrBusy)
		return
	}

	h.background("storyboard", func(ctx context.Context) error {
		_, err := h.wiz.GenerateStoryboard(ctx)
		return err
	})
	c.JSON(http.StatusAccepted, models.AcceptedResponse{Status: "accepted", Message: "storyboard generation started"})
}

func (h *WizardHandler) ExportStoryboard(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.wiz.ExportStoryboard(&buf); err != nil {
		respondError(c, "failed to export storyboard", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="storyboard.yaml"`)
	c.Data(http.StatusOK, "application/yaml", buf.Bytes())
}

func (h *WizardHandler) UploadLogo(c *gin.Context) {
	f, ok := readFormFile(c, "logo")
	if !ok {
		return
	}
	if err := h.wiz.HandleLogoUpload(c.Request.Context(), f); err != nil {
		respondError(c, "failed to upload logo", err)
		return
	}
	c.JSON(http.StatusOK, h.wiz.Snapshot().Logo)
}

func (h *WizardHandler) RemoveLogo(c *gin.Context) {
	if err := h.wiz.RemoveLogo(c.Request.Context()); err != nil {
		respondError(c, "failed to remove logo", err)
		return
	}
	c.JSON(http.StatusOK, h.wiz.Snapshot().Logo)
}

func (h *WizardHandler) Zoom(c *gin.Context) {
	var req models.ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	zoom, err := h.wiz.AdjustZoom(req.Direction)
	if err != nil {
		respondError(c, "invalid zoom", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zoom": zoom})
}

// UpdateSettings applies the aspect ratio, avatar and voice in that order and
// stops at the first invalid one.
func (h *WizardHandler) UpdateSettings(c *gin.Context) {
	var req models.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	if req.AspectRatio != nil {
		if err := h.wiz.SetAspectRatio(*req.AspectRatio); err != nil {
			respondError(c, "invalid settings", err)
			return
		}
	}
	if req.AvatarID != nil {
		if err := h.wiz.SelectAvatar(*req.AvatarID); err != nil {
			respondError(c, "invalid settings", err)
			return
		}
	}
	if req.VoiceID != nil {
		if err := h.wiz.SelectVoice(*req.VoiceID); err != nil {
			respondError(c, "invalid settings", err)
			return
		}
	}
	c.JSON(http.StatusOK, h.wiz.Snapshot())
}

// GetCatalog loads avatars and voices on first use, or again with
// ?refresh=true.
func (h *WizardHandler) GetCatalog(c *gin.Context) {
	avatars, voices := h.wiz.Catalog()
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	if refresh || len(avatars) == 0 {
		if err := h.wiz.LoadCatalog(c.Request.Context()); err != nil {
			respondError(c, "failed to load catalog", err)
			return
		}
		avatars, voices = h.wiz.Catalog()
	}
	c.JSON(http.StatusOK, models.CatalogResponse{Avatars: avatars, Voices: voices})
}

// GenerateVideo godoc
// @Summary     Render the storyboard to video
// @Description Submits every scene and polls the render in the background. The result arrives on /events and in /state.
// @Tags        wizard
// @Accept      json
// @Produce     json
// @Param       request body models.VideoRequest false "Avatar selection"
// @Success     202 {object} models.AcceptedResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /wizard/video [post]
func (h *WizardHandler) GenerateVideo(c *gin.Context) {
	var req models.VideoRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
			return
		}
	}

	st := h.wiz.Snapshot()
	switch {
	case st.IsGeneratingVideo:
		respondError(c, "video generation in progress", wizard.ErrBusy)
		return
	case len(st.Scenes) == 0:
		respondError(c, "nothing to render", wizard.ErrNoScenes)
		return
	case st.SelectedVoice == "":
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid settings", Message: "Please select a voice."})
		return
	}
	if req.AvatarID != "" {
		if err := h.wiz.SelectAvatar(req.AvatarID); err != nil {
			respondError(c, "invalid settings", err)
			return
		}
	}

	h.background("video", func(ctx context.Context) error {
		_, err := h.wiz.RequestVideoGeneration(ctx, "")
		return err
	})
	c.JSON(http.StatusAccepted, models.AcceptedResponse{Status: "accepted", Message: "video generation started"})
}

// Events streams wizard events as server-sent events. The first event is a
// full state snapshot.
func (h *WizardHandler) Events(c *gin.Context) {
	ch, cancel := h.hub.Subscribe(64)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("state", h.wiz.Snapshot())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

// readFormFile writes a 400 and returns false when the field is missing.
func readFormFile(c *gin.Context, field string) (wizard.LocalFile, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing file", Message: "form field " + strconv.Quote(field) + " is required"})
		return wizard.LocalFile{}, false
	}
	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read file", Message: err.Error()})
		return wizard.LocalFile{}, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxFormFileBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read file", Message: err.Error()})
		return wizard.LocalFile{}, false
	}
	return wizard.LocalFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, true
}
