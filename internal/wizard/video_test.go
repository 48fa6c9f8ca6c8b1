package wizard_test

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"slide2video/internal/events"
	"slide2video/internal/wizard"
)

func processing() statusReply {
	return statusReply{body: gin.H{"success": true, "video_id": "vid-1", "status": "processing"}}
}

// readyForVideo drives the wizard to Review with the catalog loaded.
func readyForVideo(t *testing.T, fb *fakeBackend, opts ...wizard.Option) *harness {
	t.Helper()
	h := newHarness(t, fb, opts...)
	h.toReview(t)
	require.NoError(t, h.wiz.LoadCatalog(context.Background()))
	return h
}

func TestRequestVideoGeneration_PollsUntilCompleted(t *testing.T) {
	fb := newFakeBackend(2)
	fb.statuses = []statusReply{
		processing(),
		processing(),
		{body: gin.H{"success": true, "video_id": "vid-1", "status": "completed", "video_url": "https://videos/vid-1.mp4"}},
	}
	h := readyForVideo(t, fb)

	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, wizard.VideoCompleted, result.Status)
	assert.Equal(t, 100, result.Progress)
	assert.Equal(t, "https://videos/vid-1.mp4", result.VideoURL)
	assert.Equal(t, "vid-1", result.VideoID)
	assert.Equal(t, 3, fb.count("video-status"))

	st := h.wiz.Snapshot()
	assert.False(t, st.IsGeneratingVideo)
	require.NotNil(t, st.Video)
	assert.Equal(t, wizard.VideoCompleted, st.Video.Status)

	completed := h.recorder.OfType(events.TypeVideoCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "https://videos/vid-1.mp4", completed[0].Payload["video_url"])
	assert.Contains(t, h.notifications(events.LevelSuccess), "Video generated successfully!")
}

func TestRequestVideoGeneration_SubmitsScenesAndSelections(t *testing.T) {
	fb := newFakeBackend(2)
	fb.statuses = []statusReply{{body: gin.H{"status": "completed", "video_url": "https://videos/v.mp4"}}}
	h := readyForVideo(t, fb)

	_, err := h.wiz.RequestVideoGeneration(context.Background(), wizard.NoAvatarID)
	require.NoError(t, err)

	req := fb.videoReq
	require.NotNil(t, req)
	assert.Contains(t, req, "avatar_id")
	assert.Nil(t, req["avatar_id"])
	assert.Equal(t, "v-en", req["voice_id"])

	scenes, ok := req["scenes"].([]interface{})
	require.True(t, ok)
	require.Len(t, scenes, 2)
	first := scenes[0].(map[string]interface{})
	assert.Equal(t, "scene_1", first["scene_id"])
	assert.Equal(t, "https://img/scene_1.png", first["image_url"])
	assert.Equal(t, "script 1", first["speech_script"])
	assert.EqualValues(t, 1, first["original_slide_number"])
}

func TestRequestVideoGeneration_WithAvatar(t *testing.T) {
	fb := newFakeBackend(1)
	fb.statuses = []statusReply{{body: gin.H{"status": "completed", "video_url": "https://videos/v.mp4"}}}
	h := readyForVideo(t, fb)

	_, err := h.wiz.RequestVideoGeneration(context.Background(), "anna")
	require.NoError(t, err)
	assert.Equal(t, "anna", fb.videoReq["avatar_id"])
	assert.Equal(t, "anna", h.wiz.Snapshot().SelectedAvatar)
}

func TestRequestVideoGeneration_FailsOnFirstPoll(t *testing.T) {
	fb := newFakeBackend(1)
	fb.statuses = []statusReply{
		{body: gin.H{"success": false, "video_id": "vid-1", "status": "failed", "error": "Avatar rendering crashed", "error_code": 40012}},
	}
	h := readyForVideo(t, fb, wizard.WithPollInterval(time.Hour))

	start := time.Now()
	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, wizard.ErrVideoFailed)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, wizard.VideoFailed, result.Status)
	assert.Equal(t, "Avatar rendering crashed", result.Error)
	assert.Equal(t, "40012", result.ErrorCode)
	assert.Equal(t, 1, fb.count("video-status"))
	assert.Contains(t, h.notifications(events.LevelError), "Video generation failed: Avatar rendering crashed")
}

func TestRequestVideoGeneration_StatusEndpointError(t *testing.T) {
	fb := newFakeBackend(1)
	fb.statuses = []statusReply{
		{code: 422, body: gin.H{"detail": gin.H{"error": "Script too long for avatar", "error_code": "SCRIPT_LEN"}}},
	}
	h := readyForVideo(t, fb)

	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, wizard.VideoFailed, result.Status)
	assert.Equal(t, "Script too long for avatar", result.Error)
	assert.Equal(t, "SCRIPT_LEN", result.ErrorCode)
	assert.Equal(t, 1, fb.count("video-status"))
}

func TestRequestVideoGeneration_TerminalStatusesEndPolling(t *testing.T) {
	tests := []struct {
		name      string
		reply     gin.H
		wantError string
	}{
		{"completed without url", gin.H{"success": true, "video_id": "vid-1", "status": "completed"}, "Video generation completed but no video URL provided"},
		{"unrecognized status", gin.H{"success": true, "video_id": "vid-1", "status": "archived"}, `Unknown video status: "archived"`},
		{"missing status", gin.H{"success": true, "video_id": "vid-1"}, `Unknown video status: ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(1)
			fb.statuses = []statusReply{{body: tt.reply}}
			h := readyForVideo(t, fb, wizard.WithPollInterval(time.Hour), wizard.WithPollTimeout(time.Hour))

			start := time.Now()
			result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, wizard.ErrVideoFailed)
			assert.Less(t, time.Since(start), time.Second)

			assert.Equal(t, wizard.VideoFailed, result.Status)
			assert.Equal(t, tt.wantError, result.Error)
			assert.Empty(t, result.VideoURL)
			assert.Equal(t, 1, fb.count("video-status"))
			assert.False(t, h.wiz.Snapshot().IsGeneratingVideo)
		})
	}
}

func TestRequestVideoGeneration_PendingStatusesKeepPolling(t *testing.T) {
	fb := newFakeBackend(1)
	fb.statuses = []statusReply{
		{body: gin.H{"status": "pending"}},
		{body: gin.H{"status": "waiting"}},
		{body: gin.H{"status": "Processing"}},
		{body: gin.H{"status": "completed", "video_url": "https://videos/v.mp4"}},
	}
	h := readyForVideo(t, fb)

	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, wizard.VideoCompleted, result.Status)
	assert.Equal(t, 4, fb.count("video-status"))
}

func TestRequestVideoGeneration_SubmissionFailure(t *testing.T) {
	fb := newFakeBackend(1)
	fb.videoStatus = 500
	fb.videoBody = gin.H{"detail": "Renderer unavailable"}
	h := readyForVideo(t, fb)

	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, wizard.VideoFailed, result.Status)
	assert.Equal(t, "Renderer unavailable", result.Error)
	assert.Equal(t, 0, fb.count("video-status"))
	assert.False(t, h.wiz.Snapshot().IsGeneratingVideo)
}

func TestRequestVideoGeneration_SynchronousURL(t *testing.T) {
	fb := newFakeBackend(1)
	fb.videoBody = gin.H{"success": true, "video_id": "vid-9", "video_url": "https://videos/vid-9.mp4"}
	h := readyForVideo(t, fb)

	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, wizard.VideoCompleted, result.Status)
	assert.Equal(t, "https://videos/vid-9.mp4", result.VideoURL)
	assert.Equal(t, 0, fb.count("video-status"))
}

func TestRequestVideoGeneration_SimulatedProgressStaysBelowCap(t *testing.T) {
	fb := newFakeBackend(1)
	statuses := make([]statusReply, 0, 6)
	for i := 0; i < 5; i++ {
		statuses = append(statuses, processing())
	}
	statuses = append(statuses, statusReply{body: gin.H{"status": "completed", "video_url": "https://videos/v.mp4"}})
	fb.statuses = statuses
	h := readyForVideo(t, fb, wizard.WithPollInterval(30*time.Millisecond), wizard.WithProgressTick(time.Millisecond))

	_, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.NoError(t, err)

	updates := h.recorder.OfType(events.TypeVideoProgress)
	require.NotEmpty(t, updates)
	prev := -1
	for _, e := range updates {
		p := e.Payload["progress"].(int)
		assert.GreaterOrEqual(t, p, prev)
		assert.LessOrEqual(t, p, 90)
		prev = p
	}
	assert.Equal(t, 90, prev)
}

func TestRequestVideoGeneration_TimesOut(t *testing.T) {
	fb := newFakeBackend(1)
	h := readyForVideo(t, fb, wizard.WithPollTimeout(80*time.Millisecond))

	result, err := h.wiz.RequestVideoGeneration(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, wizard.VideoFailed, result.Status)
	assert.Equal(t, "timeout", result.ErrorCode)
	assert.Equal(t, 0, result.Progress)
}

func TestRequestVideoGeneration_ResetStopsPolling(t *testing.T) {
	fb := newFakeBackend(1)
	h := readyForVideo(t, fb)

	errc := make(chan error, 1)
	go func() {
		_, err := h.wiz.RequestVideoGeneration(context.Background(), "")
		errc <- err
	}()

	require.Eventually(t, func() bool { return fb.count("video-status") >= 2 }, 2*time.Second, 5*time.Millisecond)
	h.wiz.Reset()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, wizard.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not stop after reset")
	}

	polled := fb.count("video-status")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, polled, fb.count("video-status"))
	assert.Nil(t, h.wiz.Snapshot().Video)
	assert.False(t, h.wiz.Snapshot().IsGeneratingVideo)
}

func TestRequestVideoGeneration_CallerCancelFails(t *testing.T) {
	fb := newFakeBackend(1)
	h := readyForVideo(t, fb)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for fb.count("video-status") < 1 {
			time.Sleep(2 * time.Millisecond)
		}
		cancel()
	}()

	result, err := h.wiz.RequestVideoGeneration(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, wizard.VideoFailed, result.Status)
}

func TestRequestVideoGeneration_Guards(t *testing.T) {
	t.Run("no scenes", func(t *testing.T) {
		h := newHarness(t, newFakeBackend(1))
		_, err := h.wiz.RequestVideoGeneration(context.Background(), "")
		assert.ErrorIs(t, err, wizard.ErrNoScenes)
	})

	t.Run("no voice", func(t *testing.T) {
		fb := newFakeBackend(1)
		h := newHarness(t, fb)
		h.toReview(t)
		_, err := h.wiz.RequestVideoGeneration(context.Background(), "")
		require.ErrorIs(t, err, wizard.ErrValidation)
		assert.Equal(t, "Please select a voice.", err.Error())
		assert.Equal(t, 0, fb.count("generate-video"))
	})

	t.Run("premium avatar", func(t *testing.T) {
		fb := newFakeBackend(1)
		h := readyForVideo(t, fb)
		_, err := h.wiz.RequestVideoGeneration(context.Background(), "gold")
		assert.ErrorIs(t, err, wizard.ErrValidation)
		assert.Equal(t, 0, fb.count("generate-video"))
	})

	t.Run("already rendering", func(t *testing.T) {
		fb := newFakeBackend(1)
		h := readyForVideo(t, fb)
		go func() { _, _ = h.wiz.RequestVideoGeneration(context.Background(), "") }()
		require.Eventually(t, func() bool { return h.wiz.Snapshot().IsGeneratingVideo }, time.Second, time.Millisecond)

		_, err := h.wiz.RequestVideoGeneration(context.Background(), "")
		assert.ErrorIs(t, err, wizard.ErrBusy)
		h.wiz.Reset()
	})
}
