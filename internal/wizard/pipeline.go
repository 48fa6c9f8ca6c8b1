package wizard

import (
	"context"
	"fmt"

	"slide2video/internal/backend"
	"slide2video/internal/events"
	"slide2video/internal/models"
)

// ImageResult is the outcome of one image request.
type ImageResult struct {
	SceneID string `json:"scene_id"`
	URL     string `json:"image_url,omitempty"`
	Err     error  `json:"-"`
}

func (r ImageResult) OK() bool {
	return r.Err == nil
}

// BatchReport lists the pipeline's per-scene results in storyboard order.
type BatchReport struct {
	Results []ImageResult
}

func (b BatchReport) Generated() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

func (b BatchReport) Failed() int {
	return len(b.Results) - b.Generated()
}

// GenerateStoryboard turns the extraction into scenes and then generates
// their images one at a time, in order. A failing scene records its error
// and the batch moves on. Without an extraction it does nothing.
func (w *Wizard) GenerateStoryboard(ctx context.Context) (*BatchReport, error) {
	w.mu.Lock()
	if w.extraction == nil {
		w.mu.Unlock()
		return nil, nil
	}
	if w.generatingScenes || w.generatingImages {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	w.generatingScenes = true
	epoch := w.epoch
	extraction := w.extraction
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.epoch == epoch {
			w.generatingScenes = false
		}
		w.mu.Unlock()
	}()

	resp, err := w.client.GenerateScenes(ctx, extraction)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err != nil {
		w.mu.Unlock()
		w.notify(events.LevelError, "Generation error: "+backend.Message(err))
		return nil, fmt.Errorf("failed to generate scenes: %w", err)
	}

	before := w.stepLocked()
	w.storyboard++
	generation := w.storyboard
	w.tableImages = resp.TableImageURLs
	if w.tableImages == nil {
		w.tableImages = map[string][]string{}
	}

	total := len(resp.Scenes)
	scenes := make([]Scene, total)
	ids := make([]string, total)
	for i, raw := range resp.Scenes {
		scenes[i] = Scene{
			SceneID:             raw.SceneID,
			OriginalSlideNumber: raw.OriginalSlideNumber,
			ImagePrompt:         raw.ImagePrompt,
			SpeechScript:        raw.SpeechScript,
			IsQueued:            true,
			GenerationProgress:  &GenerationProgress{Current: 0, Total: total},
		}
		ids[i] = raw.SceneID
	}
	w.scenes = scenes
	w.generatingImages = total > 0
	after := w.stepLocked()
	w.mu.Unlock()

	w.notify(events.LevelSuccess, "Storyboard scenes generated!")
	w.stepChanged(before, after)

	if total == 0 {
		return &BatchReport{}, nil
	}
	return w.runPipeline(ctx, epoch, generation, ids)
}

func (w *Wizard) runPipeline(ctx context.Context, epoch, generation uint64, ids []string) (*BatchReport, error) {
	report := &BatchReport{Results: make([]ImageResult, 0, len(ids))}
	total := len(ids)

	current := func() bool {
		return w.epoch == epoch && w.storyboard == generation
	}

	defer func() {
		w.mu.Lock()
		if !current() {
			w.mu.Unlock()
			return
		}
		next := make([]Scene, len(w.scenes))
		for i, s := range w.scenes {
			s.IsQueued = false
			s.GenerationProgress = nil
			next[i] = s
		}
		w.scenes = next
		w.generatingImages = false
		w.mu.Unlock()

		w.publish(events.TypeBatchCompleted, events.BatchCompletedPayload(report.Generated(), report.Failed(), total))
	}()

	for i, id := range ids {
		w.mu.Lock()
		if !current() {
			w.mu.Unlock()
			return report, ErrSuperseded
		}

		progress := &GenerationProgress{Current: i + 1, Total: total}
		next := make([]Scene, len(w.scenes))
		var scene Scene
		for j, s := range w.scenes {
			switch {
			case j == i:
				s.IsGenerating = true
				s.IsQueued = false
				scene = s
			case j > i:
				s.IsQueued = true
			default:
				s.IsQueued = false
			}
			s.GenerationProgress = progress
			next[j] = s
		}
		w.scenes = next
		logoID, logoURL := w.logoRefsLocked()
		req := models.GenerateImageRequest{
			Prompt:      scene.ImagePrompt,
			SceneID:     id,
			LogoID:      logoID,
			LogoURL:     logoURL,
			AspectRatio: w.aspectRatio,
		}
		w.mu.Unlock()

		w.publish(events.TypeBatchProgress, events.BatchProgressPayload(id, i+1, total))
		w.sceneEvent(scene)

		var url string
		err := ctx.Err()
		if err == nil {
			url, err = w.client.GenerateImage(ctx, req)
		}

		w.mu.Lock()
		if !current() {
			w.mu.Unlock()
			return report, ErrSuperseded
		}
		updated, _, _ := w.updateSceneLocked(id, func(s *Scene) {
			applyImageResult(s, url, err)
		})
		w.mu.Unlock()

		report.Results = append(report.Results, ImageResult{SceneID: id, URL: url, Err: err})
		w.sceneEvent(updated)
		if err != nil {
			w.logger.Warn("scene image generation failed", "scene_id", id, "error", err)
		}
	}

	return report, nil
}

// RegenerateSceneImage requests a new image for one scene using its current
// prompt. It runs independently of the batch and rejects a scene that is
// queued, generating or uploading.
func (w *Wizard) RegenerateSceneImage(ctx context.Context, sceneID string) (ImageResult, error) {
	w.mu.Lock()
	scene, _, ok := w.findSceneLocked(sceneID)
	if !ok {
		w.mu.Unlock()
		return ImageResult{SceneID: sceneID}, ErrSceneNotFound
	}
	if scene.busy() {
		w.mu.Unlock()
		return ImageResult{SceneID: sceneID}, ErrSceneBusy
	}
	scene, index, _ := w.updateSceneLocked(sceneID, func(s *Scene) {
		s.IsGenerating = true
		s.ImageGenError = nil
	})
	epoch, generation := w.epoch, w.storyboard
	logoID, logoURL := w.logoRefsLocked()
	req := models.GenerateImageRequest{
		Prompt:      scene.ImagePrompt,
		SceneID:     sceneID,
		LogoID:      logoID,
		LogoURL:     logoURL,
		AspectRatio: w.aspectRatio,
	}
	w.mu.Unlock()
	w.sceneEvent(scene)

	url, err := w.client.GenerateImage(ctx, req)

	w.mu.Lock()
	if w.epoch != epoch || w.storyboard != generation {
		w.mu.Unlock()
		return ImageResult{SceneID: sceneID}, ErrSuperseded
	}
	updated, _, found := w.updateSceneLocked(sceneID, func(s *Scene) {
		applyImageResult(s, url, err)
	})
	w.mu.Unlock()

	if found {
		w.sceneEvent(updated)
	}
	result := ImageResult{SceneID: sceneID, URL: url, Err: err}
	if err != nil {
		w.notify(events.LevelError, fmt.Sprintf("Scene %d: %s", index+1, backend.Message(err)))
		return result, fmt.Errorf("failed to regenerate image: %w", err)
	}
	w.notify(events.LevelSuccess, fmt.Sprintf("Image updated for Scene %d", index+1))
	return result, nil
}

func applyImageResult(s *Scene, url string, err error) {
	s.IsGenerating = false
	s.IsQueued = false
	if err != nil {
		msg := backend.Message(err)
		if msg == "" {
			msg = "Image generation failed."
		}
		s.ImageGenError = strPtr(msg)
		return
	}
	s.GeneratedImageURL = strPtr(url)
	s.ImageGenError = nil
}
