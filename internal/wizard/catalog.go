package wizard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"slide2video/internal/events"
	"slide2video/internal/models"
)

func noAvatar() models.Avatar {
	return models.Avatar{
		AvatarID:   NoAvatarID,
		AvatarName: NoAvatarName,
		Gender:     "female",
	}
}

// LoadCatalog fetches avatars and voices concurrently. The "Without Avatar"
// entry is always first. When nothing valid is selected yet, the avatar
// defaults to that entry and the voice to the first voice.
func (w *Wizard) LoadCatalog(ctx context.Context) error {
	var avatars []models.Avatar
	var voices []models.Voice

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := w.client.ListAvatars(gctx)
		avatars = list
		return err
	})
	g.Go(func() error {
		list, err := w.client.ListVoices(gctx)
		voices = list
		return err
	})
	if err := g.Wait(); err != nil {
		w.notify(events.LevelError, "Failed to fetch avatars and voices.")
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	catalog := make([]models.Avatar, 0, len(avatars)+1)
	catalog = append(catalog, noAvatar())
	for _, a := range avatars {
		if a.AvatarID != NoAvatarID {
			catalog = append(catalog, a)
		}
	}

	w.mu.Lock()
	w.avatars = catalog
	w.voices = voices
	if _, ok := findAvatar(catalog, w.selectedAvatar); !ok {
		w.selectedAvatar = NoAvatarID
	}
	if !hasVoice(voices, w.selectedVoice) {
		w.selectedVoice = ""
		if len(voices) > 0 {
			w.selectedVoice = voices[0].VoiceID
		}
	}
	w.mu.Unlock()

	w.publish(events.TypeCatalogLoaded, events.CatalogLoadedPayload(len(catalog), len(voices)))
	return nil
}

// Catalog returns the loaded avatars and voices.
func (w *Wizard) Catalog() ([]models.Avatar, []models.Voice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Avatar(nil), w.avatars...), append([]models.Voice(nil), w.voices...)
}

// SelectAvatar picks the avatar used for video generation. Premium avatars
// cannot be selected.
func (w *Wizard) SelectAvatar(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkAvatarLocked(id); err != nil {
		return err
	}
	w.selectedAvatar = id
	return nil
}

func (w *Wizard) checkAvatarLocked(id string) error {
	if id == "" {
		return invalid("avatar_id", "Please select an avatar.")
	}
	if id == NoAvatarID {
		return nil
	}
	a, ok := findAvatar(w.avatars, id)
	if !ok {
		if len(w.avatars) > 0 {
			return invalid("avatar_id", fmt.Sprintf("unknown avatar %q", id))
		}
		return nil
	}
	if a.Premium {
		return invalid("avatar_id", fmt.Sprintf("%s is a premium avatar and cannot be selected", a.AvatarName))
	}
	return nil
}

func (w *Wizard) SelectVoice(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == "" {
		return invalid("voice_id", "Please select a voice.")
	}
	if len(w.voices) > 0 && !hasVoice(w.voices, id) {
		return invalid("voice_id", fmt.Sprintf("unknown voice %q", id))
	}
	w.selectedVoice = id
	return nil
}

// SetAspectRatio sets the W:H ratio used for generated images.
func (w *Wizard) SetAspectRatio(ratio string) error {
	if _, _, err := parseAspectRatio(ratio); err != nil {
		return err
	}
	w.mu.Lock()
	w.aspectRatio = ratio
	w.mu.Unlock()
	w.publish(events.TypeSettingsChanged, map[string]interface{}{"aspect_ratio": ratio})
	return nil
}

func parseAspectRatio(ratio string) (int, int, error) {
	parts := strings.Split(ratio, ":")
	if len(parts) != 2 {
		return 0, 0, invalid("aspect_ratio", fmt.Sprintf("aspect ratio must look like 16:9, got %q", ratio))
	}
	wv, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hv, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || wv <= 0 || hv <= 0 {
		return 0, 0, invalid("aspect_ratio", fmt.Sprintf("aspect ratio must be two positive integers, got %q", ratio))
	}
	return wv, hv, nil
}

func findAvatar(list []models.Avatar, id string) (models.Avatar, bool) {
	for _, a := range list {
		if a.AvatarID == id {
			return a, true
		}
	}
	return models.Avatar{}, false
}

func hasVoice(list []models.Voice, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range list {
		if v.VoiceID == id {
			return true
		}
	}
	return false
}
