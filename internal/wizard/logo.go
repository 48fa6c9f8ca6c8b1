package wizard

import (
	"context"
	"fmt"

	"slide2video/internal/backend"
	"slide2video/internal/events"
	"slide2video/internal/prefs"
)

// HandleLogoUpload validates the logo, shows it provisionally, and uploads
// it. The logo is confirmed only when the backend returns an id and URL; on
// failure the provisional preview is rolled back to no logo.
func (w *Wizard) HandleLogoUpload(ctx context.Context, f LocalFile) error {
	if err := validateLogo(f); err != nil {
		w.notify(events.LevelError, err.Error())
		return err
	}

	w.mu.Lock()
	w.logoToken++
	token, epoch := w.logoToken, w.epoch
	w.logo = Logo{Phase: LogoProvisional, Name: f.Name, Preview: f.dataURL()}
	w.mu.Unlock()
	w.publish(events.TypeLogoChanged, events.LogoChangedPayload(string(LogoProvisional), ""))

	resp, err := w.client.UploadLogo(ctx, f.Name, f.sniff(), f.Data)

	w.mu.Lock()
	if w.epoch != epoch || w.logoToken != token {
		w.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		w.logo = Logo{Phase: LogoNone}
		w.mu.Unlock()
		w.publish(events.TypeLogoChanged, events.LogoChangedPayload(string(LogoNone), ""))
		w.notify(events.LevelError, "Logo upload failed: "+backend.Message(err))
		return fmt.Errorf("failed to upload logo: %w", err)
	}
	w.logo.Phase = LogoConfirmed
	w.logo.LogoID = resp.LogoID
	w.logo.LogoURL = resp.LogoURL
	w.mu.Unlock()

	if err := w.prefs.Set(ctx, prefs.KeyLogoURL, resp.LogoURL); err != nil {
		w.logger.Warn("failed to persist logo url", "error", err)
	}
	w.publish(events.TypeLogoChanged, events.LogoChangedPayload(string(LogoConfirmed), resp.LogoURL))
	w.notify(events.LevelSuccess, "Logo uploaded successfully!")
	return nil
}

// RemoveLogo clears the logo, abandons any upload in flight, and deletes the
// persisted logo URL.
func (w *Wizard) RemoveLogo(ctx context.Context) error {
	w.mu.Lock()
	w.logoToken++
	w.logo = Logo{Phase: LogoNone}
	w.mu.Unlock()

	w.publish(events.TypeLogoChanged, events.LogoChangedPayload(string(LogoNone), ""))
	if err := w.prefs.Delete(ctx, prefs.KeyLogoURL); err != nil {
		return fmt.Errorf("failed to delete persisted logo url: %w", err)
	}
	return nil
}
