package wizard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"slide2video/internal/backend"
	"slide2video/internal/events"
)

// ValidateAndStageFile checks a deck locally. A rejected file changes
// nothing; an accepted one resets the wizard and becomes the staged file.
func (w *Wizard) ValidateAndStageFile(f LocalFile) error {
	if err := validateDeck(f); err != nil {
		w.notify(events.LevelError, err.Error())
		return err
	}

	w.Reset()

	w.mu.Lock()
	w.file = &UploadedFile{
		UID:    uuid.New().String(),
		Name:   f.Name,
		Size:   f.Size(),
		Status: FileStaged,
	}
	w.staged = f
	uid := w.file.UID
	w.mu.Unlock()

	w.publish(events.TypeUploadProgress, events.UploadProgressPayload("deck", uid, 0))
	return nil
}

// UploadStagedFile sends the staged deck to the backend. Failures are not
// retried.
func (w *Wizard) UploadStagedFile(ctx context.Context) error {
	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return ErrNoStagedFile
	}
	if w.file.FileID != "" {
		w.mu.Unlock()
		return nil
	}
	if w.uploading {
		w.mu.Unlock()
		return ErrBusy
	}
	w.uploading = true
	w.file = &UploadedFile{UID: w.file.UID, Name: w.file.Name, Size: w.file.Size, Status: FileUploading}
	epoch, uid := w.epoch, w.file.UID
	staged := w.staged
	w.mu.Unlock()

	onProgress := func(percent int) {
		w.mu.Lock()
		current := w.epoch == epoch && w.file != nil && w.file.UID == uid
		if current {
			f := *w.file
			f.Percent = percent
			w.file = &f
		}
		w.mu.Unlock()
		if current {
			w.publish(events.TypeUploadProgress, events.UploadProgressPayload("deck", uid, percent))
		}
	}

	fileID, err := w.client.UploadDeck(ctx, staged.Name, staged.deckContentType(), staged.Data, onProgress)

	w.mu.Lock()
	if w.epoch != epoch || w.file == nil || w.file.UID != uid {
		w.mu.Unlock()
		return ErrSuperseded
	}
	before := w.stepLocked()
	w.uploading = false
	f := *w.file
	if err != nil {
		f.Status = FileError
		w.file = &f
		w.mu.Unlock()
		w.notify(events.LevelError, "Upload failed: "+backend.Message(err))
		return fmt.Errorf("failed to upload deck: %w", err)
	}
	f.Status = FileDone
	f.Percent = 100
	f.FileID = fileID
	w.file = &f
	w.staged = LocalFile{}
	after := w.stepLocked()
	w.mu.Unlock()

	w.notify(events.LevelSuccess, f.Name+" uploaded successfully!")
	w.stepChanged(before, after)
	return nil
}

// ExtractContent asks the backend to extract the uploaded deck. Without an
// uploaded file it does nothing.
func (w *Wizard) ExtractContent(ctx context.Context) error {
	w.mu.Lock()
	if w.file == nil || w.file.FileID == "" {
		w.mu.Unlock()
		return nil
	}
	if w.extracting {
		w.mu.Unlock()
		return ErrBusy
	}
	w.extracting = true
	epoch, fileID := w.epoch, w.file.FileID
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.epoch == epoch {
			w.extracting = false
		}
		w.mu.Unlock()
	}()

	data, err := w.client.Extract(ctx, fileID)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		w.mu.Unlock()
		w.notify(events.LevelError, "Extraction failed: "+backend.Message(err))
		return fmt.Errorf("failed to extract content: %w", err)
	}
	before := w.stepLocked()
	w.extraction = data
	after := w.stepLocked()
	w.mu.Unlock()

	w.notify(events.LevelSuccess, "Content extracted successfully!")
	w.stepChanged(before, after)
	return nil
}
