package wizard

import (
	"context"
	"fmt"
	"strings"

	"slide2video/internal/backend"
	"slide2video/internal/events"
	"slide2video/internal/prefs"
)

// Editable scene fields.
const (
	FieldImagePrompt       = "image_prompt"
	FieldSpeechScript      = "speech_script"
	FieldGeneratedImageURL = "generated_image_url"
	FieldImageGenError     = "imageGenError"
)

// EditScene sets one field on the scene with the given id. A nil value clears
// nullable fields and empties text fields. An unknown id is a no-op.
func (w *Wizard) EditScene(sceneID, field string, value *string) error {
	var apply func(*Scene)
	switch field {
	case FieldImagePrompt:
		apply = func(s *Scene) { s.ImagePrompt = deref(value) }
	case FieldSpeechScript:
		apply = func(s *Scene) { s.SpeechScript = deref(value) }
	case FieldGeneratedImageURL:
		apply = func(s *Scene) { s.GeneratedImageURL = copyPtr(value) }
	case FieldImageGenError:
		apply = func(s *Scene) { s.ImageGenError = copyPtr(value) }
	default:
		return invalid("field", fmt.Sprintf("unknown scene field %q", field))
	}

	w.mu.Lock()
	updated, _, ok := w.updateSceneLocked(sceneID, apply)
	w.mu.Unlock()

	if ok {
		w.sceneEvent(updated)
	}
	return nil
}

// DismissSceneError clears the scene's inline error.
func (w *Wizard) DismissSceneError(sceneID string) error {
	return w.EditScene(sceneID, FieldImageGenError, nil)
}

// AttachReferenceImageToScene composites refURL onto the scene's current
// image and swaps in the result. On failure the scene keeps its image.
func (w *Wizard) AttachReferenceImageToScene(ctx context.Context, sceneID, refURL string) error {
	if strings.TrimSpace(refURL) == "" {
		err := invalid("reference_image_url", "A reference image URL is required.")
		w.notify(events.LevelError, err.Error())
		return err
	}
	if w.compositor == nil {
		return ErrNoCompositor
	}

	w.mu.Lock()
	scene, _, ok := w.findSceneLocked(sceneID)
	if !ok {
		w.mu.Unlock()
		return ErrSceneNotFound
	}
	if scene.GeneratedImageURL == nil || *scene.GeneratedImageURL == "" {
		w.mu.Unlock()
		w.notify(events.LevelError, "No background image available for this scene.")
		return ErrNoBackground
	}
	if scene.busy() {
		w.mu.Unlock()
		return ErrSceneBusy
	}
	background := *scene.GeneratedImageURL
	scene, _, _ = w.updateSceneLocked(sceneID, func(s *Scene) { s.IsUploading = true })
	epoch, generation := w.epoch, w.storyboard
	w.mu.Unlock()
	w.sceneEvent(scene)

	merged, err := w.compositor.OverlayAndUpload(ctx, background, refURL)

	w.mu.Lock()
	if w.epoch != epoch || w.storyboard != generation {
		w.mu.Unlock()
		return ErrSuperseded
	}
	updated, _, found := w.updateSceneLocked(sceneID, func(s *Scene) {
		s.IsUploading = false
		if err == nil {
			s.GeneratedImageURL = strPtr(merged)
			s.ImageGenError = nil
		}
	})
	w.mu.Unlock()

	if found {
		w.sceneEvent(updated)
	}
	if err != nil {
		w.notify(events.LevelError, "Failed to add table image to scene.")
		return fmt.Errorf("failed to attach reference image: %w", err)
	}
	w.notify(events.LevelSuccess, "Table image added to scene background successfully!")
	return nil
}

// UploadLocalImageForScene uploads a user image and uses it as the scene's
// image, skipping generation. The persisted logo URL goes along as context.
func (w *Wizard) UploadLocalImageForScene(ctx context.Context, sceneID string, f LocalFile) error {
	if err := validateSceneImage(f); err != nil {
		w.notify(events.LevelError, err.Error())
		return err
	}

	w.mu.Lock()
	scene, _, ok := w.findSceneLocked(sceneID)
	if !ok {
		w.mu.Unlock()
		return ErrSceneNotFound
	}
	if scene.busy() {
		w.mu.Unlock()
		return ErrSceneBusy
	}
	scene, _, _ = w.updateSceneLocked(sceneID, func(s *Scene) { s.IsUploading = true })
	epoch, generation := w.epoch, w.storyboard
	w.mu.Unlock()
	w.sceneEvent(scene)

	logoURL, _, err := w.prefs.Get(ctx, prefs.KeyLogoURL)
	if err != nil {
		w.logger.Warn("failed to read persisted logo url", "error", err)
		logoURL = ""
	}

	onProgress := func(percent int) {
		w.publish(events.TypeUploadProgress, events.UploadProgressPayload("scene", sceneID, percent))
	}
	url, err := w.client.UploadImage(ctx, f.Name, f.sniff(), f.Data, logoURL, onProgress)

	w.mu.Lock()
	if w.epoch != epoch || w.storyboard != generation {
		w.mu.Unlock()
		return ErrSuperseded
	}
	updated, _, found := w.updateSceneLocked(sceneID, func(s *Scene) {
		s.IsUploading = false
		if err == nil {
			s.GeneratedImageURL = strPtr(url)
			s.ImageGenError = nil
		}
	})
	w.mu.Unlock()

	if found {
		w.sceneEvent(updated)
	}
	if err != nil {
		w.notify(events.LevelError, "Image upload failed: "+backend.Message(err))
		return fmt.Errorf("failed to upload scene image: %w", err)
	}
	w.notify(events.LevelSuccess, "Image uploaded successfully!")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return strPtr(*s)
}
