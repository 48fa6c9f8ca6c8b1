package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"slide2video/internal/backend"
	"slide2video/internal/events"
	"slide2video/internal/models"
)

// ErrVideoFailed wraps backend-reported render failures.
var ErrVideoFailed = errors.New("video generation failed")

const (
	progressStep = 5
	progressCap  = 90
)

// RequestVideoGeneration submits every scene for rendering and blocks until
// the video is completed or failed. avatarSelection may be NoAvatarID, an
// avatar id, or empty to keep the current selection. A voice must be
// selected.
func (w *Wizard) RequestVideoGeneration(ctx context.Context, avatarSelection string) (VideoResult, error) {
	w.mu.Lock()
	if w.generatingVideo {
		w.mu.Unlock()
		return VideoResult{}, ErrBusy
	}
	if len(w.scenes) == 0 {
		w.mu.Unlock()
		return VideoResult{}, ErrNoScenes
	}
	if avatarSelection == "" {
		avatarSelection = w.selectedAvatar
	}
	if avatarSelection == "" {
		avatarSelection = NoAvatarID
	}
	if err := w.checkAvatarLocked(avatarSelection); err != nil {
		w.mu.Unlock()
		w.notify(events.LevelError, err.Error())
		return VideoResult{}, err
	}
	if w.selectedVoice == "" {
		w.mu.Unlock()
		err := invalid("voice_id", "Please select a voice.")
		w.notify(events.LevelError, err.Error())
		return VideoResult{}, err
	}
	w.selectedAvatar = avatarSelection

	req := models.GenerateVideoRequest{
		Scenes:  make([]models.VideoScene, len(w.scenes)),
		VoiceID: w.selectedVoice,
	}
	if avatarSelection != NoAvatarID {
		req.AvatarID = strPtr(avatarSelection)
	}
	for i, s := range w.scenes {
		req.Scenes[i] = models.VideoScene{
			SceneID:             s.SceneID,
			OriginalSlideNumber: s.OriginalSlideNumber,
			ImageURL:            deref(s.GeneratedImageURL),
			SpeechScript:        s.SpeechScript,
		}
	}

	pollCtx, cancel := context.WithCancel(ctx)
	w.generatingVideo = true
	w.video = &VideoResult{Status: VideoProcessing}
	w.pollCancel = cancel
	epoch := w.epoch
	w.mu.Unlock()

	defer func() {
		cancel()
		w.mu.Lock()
		if w.epoch == epoch {
			w.generatingVideo = false
			w.pollCancel = nil
		}
		w.mu.Unlock()
	}()

	w.publish(events.TypeVideoProgress, events.VideoProgressPayload("", string(VideoProcessing), 0))

	resp, err := w.client.GenerateVideo(pollCtx, req)
	if err != nil {
		if pollCtx.Err() != nil {
			return w.videoCancelled(epoch, "")
		}
		return w.finishVideo(epoch, "", VideoResult{
			Status:    VideoFailed,
			Error:     backend.Message(err),
			ErrorCode: backend.Code(err),
		}, err)
	}

	if resp.VideoURL != "" {
		return w.finishVideo(epoch, "", VideoResult{
			VideoID:  resp.VideoID,
			VideoURL: resp.VideoURL,
			Status:   VideoCompleted,
			Progress: 100,
		}, nil)
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return VideoResult{}, ErrSuperseded
	}
	w.video = &VideoResult{VideoID: resp.VideoID, Status: VideoProcessing}
	w.mu.Unlock()
	w.logger.Info("video render started", "video_id", resp.VideoID)

	return w.pollVideo(pollCtx, epoch, resp.VideoID)
}

// pollVideo checks status immediately and then every pollInterval, while a
// simulated progress figure creeps toward 90%. It returns on a terminal
// status, a transport error, the poll timeout, or cancellation.
func (w *Wizard) pollVideo(ctx context.Context, epoch uint64, videoID string) (VideoResult, error) {
	pollTicker := time.NewTicker(w.pollInterval)
	defer pollTicker.Stop()
	progressTicker := time.NewTicker(w.progressTick)
	defer progressTicker.Stop()
	deadline := time.NewTimer(w.pollTimeout)
	defer deadline.Stop()

	for {
		if result, done, err := w.checkVideo(ctx, epoch, videoID); done {
			return result, err
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return w.videoCancelled(epoch, videoID)
			case <-deadline.C:
				return w.finishVideo(epoch, videoID, VideoResult{
					VideoID:   videoID,
					Status:    VideoFailed,
					Error:     "Timed out waiting for the video to finish rendering.",
					ErrorCode: "timeout",
				}, nil)
			case <-progressTicker.C:
				w.bumpVideoProgress(epoch, videoID)
			case <-pollTicker.C:
				break wait
			}
		}
	}
}

func (w *Wizard) checkVideo(ctx context.Context, epoch uint64, videoID string) (VideoResult, bool, error) {
	status, err := w.client.VideoStatus(ctx, videoID)
	if err != nil {
		if ctx.Err() != nil {
			result, err := w.videoCancelled(epoch, videoID)
			return result, true, err
		}
		result, err := w.finishVideo(epoch, videoID, VideoResult{
			VideoID:   videoID,
			Status:    VideoFailed,
			Error:     backend.Message(err),
			ErrorCode: backend.Code(err),
		}, err)
		return result, true, err
	}

	state := strings.ToLower(strings.TrimSpace(status.Status))
	switch {
	case state == "completed" && status.VideoURL != "":
		result, err := w.finishVideo(epoch, videoID, VideoResult{
			VideoID:  videoID,
			VideoURL: status.VideoURL,
			Status:   VideoCompleted,
			Progress: 100,
		}, nil)
		return result, true, err

	case state == "completed":
		result, err := w.finishVideo(epoch, videoID, VideoResult{
			VideoID: videoID,
			Status:  VideoFailed,
			Error:   "Video generation completed but no video URL provided",
		}, nil)
		return result, true, err

	case state == "failed" || state == "error" || (status.Success != nil && !*status.Success && status.Error != ""):
		msg := status.Error.String()
		if msg == "" {
			msg = "Video generation failed."
		}
		code := status.ErrorCode.String()
		if code == "" {
			code = status.HTTPStatus.String()
		}
		result, err := w.finishVideo(epoch, videoID, VideoResult{
			VideoID:   videoID,
			Status:    VideoFailed,
			Error:     msg,
			ErrorCode: code,
		}, nil)
		return result, true, err

	case pendingStatuses[state]:
		w.logger.Debug("video still rendering", "video_id", videoID, "status", status.Status)
		return VideoResult{}, false, nil
	}

	result, err := w.finishVideo(epoch, videoID, VideoResult{
		VideoID: videoID,
		Status:  VideoFailed,
		Error:   fmt.Sprintf("Unknown video status: %q", status.Status),
	}, nil)
	return result, true, err
}

// pendingStatuses are the only states that keep the poller waiting.
var pendingStatuses = map[string]bool{
	"processing": true,
	"pending":    true,
	"waiting":    true,
}

func (w *Wizard) bumpVideoProgress(epoch uint64, videoID string) {
	w.mu.Lock()
	if w.epoch != epoch || w.video == nil || w.video.VideoID != videoID || w.video.Terminal() {
		w.mu.Unlock()
		return
	}
	v := *w.video
	v.Progress += progressStep
	if v.Progress > progressCap {
		v.Progress = progressCap
	}
	w.video = &v
	w.mu.Unlock()

	w.publish(events.TypeVideoProgress, events.VideoProgressPayload(videoID, string(v.Status), v.Progress))
}

// finishVideo records a terminal result. cause is the transport error behind
// a failure, if any.
func (w *Wizard) finishVideo(epoch uint64, videoID string, result VideoResult, cause error) (VideoResult, error) {
	w.mu.Lock()
	if w.epoch != epoch || w.video == nil || w.video.VideoID != videoID {
		w.mu.Unlock()
		return VideoResult{}, ErrSuperseded
	}
	if result.Status == VideoFailed {
		result.Progress = 0
	}
	w.video = &result
	w.mu.Unlock()

	if result.Status == VideoCompleted {
		w.publish(events.TypeVideoCompleted, events.VideoCompletedPayload(result.VideoID, result.VideoURL))
		w.notify(events.LevelSuccess, "Video generated successfully!")
		return result, nil
	}

	w.publish(events.TypeVideoFailed, events.VideoFailedPayload(result.VideoID, result.Error, result.ErrorCode))
	w.notify(events.LevelError, "Video generation failed: "+result.Error)
	if cause != nil {
		return result, fmt.Errorf("failed to generate video: %w", cause)
	}
	return result, fmt.Errorf("%w: %s", ErrVideoFailed, result.Error)
}

// videoCancelled handles a cancelled poll context: silently after a reset,
// as a failure otherwise.
func (w *Wizard) videoCancelled(epoch uint64, videoID string) (VideoResult, error) {
	w.mu.Lock()
	stale := w.epoch != epoch
	w.mu.Unlock()
	if stale {
		return VideoResult{}, ErrSuperseded
	}
	return w.finishVideo(epoch, videoID, VideoResult{
		VideoID: videoID,
		Status:  VideoFailed,
		Error:   "Video status polling was cancelled.",
	}, context.Canceled)
}
