// Package wizard owns the deck-to-video workflow state and sequences the
// backend calls that move it forward.
//
// All state lives in one Wizard behind a mutex. Network calls run without the
// lock; every completion re-acquires it and checks that the epoch (bumped by
// Reset) and the ids it captured are still current before applying anything.
// Scene updates always build a new slice from the previous one by scene id.
package wizard

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"slide2video/internal/backend"
	"slide2video/internal/compose"
	"slide2video/internal/events"
	"slide2video/internal/models"
	"slide2video/internal/prefs"
)

// Backend is the subset of the transport client the wizard drives.
type Backend interface {
	UploadDeck(ctx context.Context, filename, contentType string, data []byte, onProgress backend.ProgressFunc) (string, error)
	Extract(ctx context.Context, fileID string) (json.RawMessage, error)
	GenerateScenes(ctx context.Context, extraction json.RawMessage) (*models.GenerateScenesResponse, error)
	GenerateImage(ctx context.Context, req models.GenerateImageRequest) (string, error)
	UploadLogo(ctx context.Context, filename, contentType string, data []byte) (*models.LogoUploadResponse, error)
	UploadImage(ctx context.Context, filename, contentType string, data []byte, logoURL string, onProgress backend.ProgressFunc) (string, error)
	ListAvatars(ctx context.Context) ([]models.Avatar, error)
	ListVoices(ctx context.Context) ([]models.Voice, error)
	GenerateVideo(ctx context.Context, req models.GenerateVideoRequest) (*models.GenerateVideoResponse, error)
	VideoStatus(ctx context.Context, videoID string) (*models.VideoStatusResponse, error)
}

// Compositor overlays a foreground image on a scene background and returns
// the uploaded result's URL.
type Compositor interface {
	OverlayAndUpload(ctx context.Context, backgroundURL, foregroundURL string) (string, error)
}

const (
	NoAvatarID   = "WithoutAvatar_id"
	NoAvatarName = "Without Avatar"

	DefaultAspectRatio = "16:9"

	minZoom = 0.5
	maxZoom = 2.0
)

type Wizard struct {
	client     Backend
	compositor Compositor
	prefs      prefs.Store
	publisher  events.Publisher
	logger     *slog.Logger

	pollInterval time.Duration
	progressTick time.Duration
	pollTimeout  time.Duration

	mu sync.Mutex

	epoch uint64
	// storyboard is bumped whenever the scene collection is replaced, so a
	// late regeneration cannot land on a new scene that reuses an old id.
	storyboard uint64
	logoToken  uint64

	file      *UploadedFile
	staged    LocalFile
	uploading bool

	extraction json.RawMessage
	extracting bool

	generatingScenes bool
	generatingImages bool
	scenes           []Scene
	tableImages      map[string][]string

	logo Logo
	zoom float64

	aspectRatio    string
	avatars        []models.Avatar
	voices         []models.Voice
	selectedAvatar string
	selectedVoice  string

	generatingVideo bool
	video           *VideoResult
	pollCancel      context.CancelFunc
}

type Option func(*Wizard)

func WithCompositor(c Compositor) Option {
	return func(w *Wizard) { w.compositor = c }
}

func WithPrefs(s prefs.Store) Option {
	return func(w *Wizard) {
		if s != nil {
			w.prefs = s
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(w *Wizard) {
		if p != nil {
			w.publisher = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Wizard) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Wizard) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithProgressTick(d time.Duration) Option {
	return func(w *Wizard) {
		if d > 0 {
			w.progressTick = d
		}
	}
}

func WithPollTimeout(d time.Duration) Option {
	return func(w *Wizard) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

func WithAspectRatio(r string) Option {
	return func(w *Wizard) {
		if _, _, err := parseAspectRatio(r); err == nil {
			w.aspectRatio = r
		}
	}
}

// New builds a wizard. Without WithCompositor, a client that can upload
// merged images gets the default compositor on top of it.
func New(client Backend, opts ...Option) *Wizard {
	w := &Wizard{
		client:       client,
		prefs:        prefs.NewMemoryStore(),
		publisher:    events.Discard,
		logger:       slog.Default(),
		pollInterval: 3 * time.Second,
		progressTick: time.Second,
		pollTimeout:  2 * time.Hour,
		zoom:         1,
		aspectRatio:  DefaultAspectRatio,
		tableImages:  map[string][]string{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.compositor == nil {
		if up, ok := client.(compose.Uploader); ok {
			w.compositor = compose.New(up, compose.WithLogger(w.logger))
		}
	}
	return w
}

// Snapshot returns a copy of the current state.
func (w *Wizard) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() State {
	st := State{
		Step:               w.stepLocked(),
		IsUploading:        w.uploading,
		IsExtracting:       w.extracting,
		IsGeneratingScenes: w.generatingScenes,
		IsGeneratingImages: w.generatingImages,
		Scenes:             append([]Scene(nil), w.scenes...),
		TableImageURLs:     make(map[string][]string, len(w.tableImages)),
		GeneratedCount:     countGenerated(w.scenes),
		Logo:               w.logo,
		Zoom:               w.zoom,
		AspectRatio:        w.aspectRatio,
		Avatars:            append([]models.Avatar(nil), w.avatars...),
		Voices:             append([]models.Voice(nil), w.voices...),
		SelectedAvatar:     w.selectedAvatar,
		SelectedVoice:      w.selectedVoice,
		IsGeneratingVideo:  w.generatingVideo,
	}
	st.StepName = st.Step.String()
	if st.Scenes == nil {
		st.Scenes = []Scene{}
	}
	if w.file != nil {
		f := *w.file
		st.File = &f
	}
	if w.extraction != nil {
		st.Extraction = append(json.RawMessage(nil), w.extraction...)
	}
	for k, v := range w.tableImages {
		st.TableImageURLs[k] = append([]string(nil), v...)
	}
	if st.Logo.Phase == "" {
		st.Logo.Phase = LogoNone
	}
	if w.video != nil {
		v := *w.video
		st.Video = &v
	}
	return st
}

func (w *Wizard) stepLocked() Step {
	fileID := ""
	if w.file != nil {
		fileID = w.file.FileID
	}
	return DeriveStep(fileID, w.extraction != nil, len(w.scenes))
}

// Step returns the current derived step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepLocked()
}

// GeneratedCount is the number of scenes holding an image and no error.
func (w *Wizard) GeneratedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return countGenerated(w.scenes)
}

// Reset drops everything derived from the current deck. The avatar/voice
// catalog, the selections, the aspect ratio and the persisted logo URL
// survive. Safe to call at any time, any number of times.
func (w *Wizard) Reset() {
	w.mu.Lock()
	before := w.stepLocked()
	w.epoch++
	w.storyboard++
	w.logoToken++

	w.file = nil
	w.staged = LocalFile{}
	w.uploading = false
	w.extraction = nil
	w.extracting = false
	w.generatingScenes = false
	w.generatingImages = false
	w.scenes = nil
	w.tableImages = map[string][]string{}
	w.logo = Logo{Phase: LogoNone}
	w.zoom = 1
	w.generatingVideo = false
	w.video = nil
	if w.pollCancel != nil {
		w.pollCancel()
		w.pollCancel = nil
	}
	after := w.stepLocked()
	w.mu.Unlock()

	w.publish(events.TypeWizardReset, nil)
	w.stepChanged(before, after)
}

// AdjustZoom moves the preview zoom one 0.1 step "in" or "out", clamped to
// [0.5, 2.0].
func (w *Wizard) AdjustZoom(direction string) (float64, error) {
	var delta float64
	switch direction {
	case "in":
		delta = 0.1
	case "out":
		delta = -0.1
	default:
		return 0, invalid("direction", `zoom direction must be "in" or "out"`)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	z := math.Round((w.zoom+delta)*10) / 10
	w.zoom = math.Min(maxZoom, math.Max(minZoom, z))
	return w.zoom, nil
}

// updateScene applies fn to a copy of the scene with the given id and swaps
// in a new slice. Must be called with the lock held.
func (w *Wizard) updateSceneLocked(id string, fn func(*Scene)) (Scene, int, bool) {
	for i, s := range w.scenes {
		if s.SceneID != id {
			continue
		}
		next := make([]Scene, len(w.scenes))
		copy(next, w.scenes)
		fn(&next[i])
		w.scenes = next
		return next[i], i, true
	}
	return Scene{}, -1, false
}

func (w *Wizard) findSceneLocked(id string) (Scene, int, bool) {
	for i, s := range w.scenes {
		if s.SceneID == id {
			return s, i, true
		}
	}
	return Scene{}, -1, false
}

// logoRefsLocked returns the confirmed logo id and URL, or nils.
func (w *Wizard) logoRefsLocked() (*string, *string) {
	if w.logo.Phase != LogoConfirmed {
		return nil, nil
	}
	return strPtr(w.logo.LogoID), strPtr(w.logo.LogoURL)
}

func (w *Wizard) publish(typ events.Type, payload map[string]interface{}) {
	w.publisher.Publish(events.New(typ, payload))
}

func (w *Wizard) notify(level, message string) {
	if level == events.LevelError {
		w.logger.Warn("wizard action failed", "message", message)
	} else {
		w.logger.Info(message)
	}
	w.publish(events.TypeNotification, events.NotificationPayload(level, message))
}

func (w *Wizard) stepChanged(before, after Step) {
	if before != after {
		w.publish(events.TypeStepChanged, events.StepChangedPayload(int(after), after.String()))
	}
}

func (w *Wizard) sceneEvent(s Scene) {
	status := "idle"
	switch {
	case s.IsGenerating:
		status = "generating"
	case s.IsQueued:
		status = "queued"
	case s.IsUploading:
		status = "uploading"
	case s.ImageGenError != nil:
		status = "failed"
	case s.GeneratedImageURL != nil:
		status = "completed"
	}
	url, errMsg := "", ""
	if s.GeneratedImageURL != nil {
		url = *s.GeneratedImageURL
	}
	if s.ImageGenError != nil {
		errMsg = *s.ImageGenError
	}
	w.publish(events.TypeSceneUpdated, events.SceneUpdatedPayload(s.SceneID, status, url, errMsg))
}
