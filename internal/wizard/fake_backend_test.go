package wizard_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"slide2video/internal/backend"
	"slide2video/internal/events"
	"slide2video/internal/logging"
	"slide2video/internal/prefs"
	"slide2video/internal/wizard"
)

// fakeBackend is an in-memory stand-in for the deck-to-video API.
type fakeBackend struct {
	mu sync.Mutex

	scenes      []gin.H
	tableImages gin.H

	uploadStatus  int
	extractStatus int
	scenesStatus  int
	logoStatus    int

	failImage map[string]bool
	// imageHook runs inside the generate-image handler before it responds.
	imageHook func(sceneID string)
	// logoHook runs inside the upload-logo handler before it responds.
	logoHook func()

	inFlight    int
	maxInFlight int
	imageCalls  []string
	imageBodies []map[string]interface{}

	uploadImageLogoURL string

	avatars      []gin.H
	voices       []gin.H
	avatarStatus int

	videoStatus int
	videoBody   gin.H
	videoReq    map[string]interface{}
	statuses    []statusReply
	statusCalls int

	calls map[string]int
}

type statusReply struct {
	code int
	body gin.H
}

func newFakeBackend(sceneCount int) *fakeBackend {
	fb := &fakeBackend{
		failImage: map[string]bool{},
		calls:     map[string]int{},
		tableImages: gin.H{
			"2": []string{"https://tables/slide2.png"},
		},
		avatars: []gin.H{
			{"avatar_id": "anna", "avatar_name": "Anna", "premium": false},
			{"avatar_id": "gold", "avatar_name": "Gold", "premium": true},
		},
		voices: []gin.H{
			{"voice_id": "v-en", "name": "Emma", "gender": "female", "language": "English"},
			{"voice_id": "v-de", "name": "Hans", "gender": "male", "language": "German"},
		},
		videoBody: gin.H{"success": true, "video_id": "vid-1", "status": "processing"},
	}
	for i := 0; i < sceneCount; i++ {
		fb.scenes = append(fb.scenes, gin.H{
			"scene_id":              fmt.Sprintf("scene_%d", i+1),
			"original_slide_number": i + 1,
			"image_prompt":          fmt.Sprintf("prompt %d", i+1),
			"speech_script":         fmt.Sprintf("script %d", i+1),
		})
	}
	return fb
}

func (fb *fakeBackend) count(name string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[name]
}

func (fb *fakeBackend) hit(name string) {
	fb.mu.Lock()
	fb.calls[name]++
	fb.mu.Unlock()
}

func statusOr(code, fallback int) int {
	if code == 0 {
		return fallback
	}
	return code
}

func (fb *fakeBackend) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")

	api.POST("/upload", func(c *gin.Context) {
		fb.hit("upload")
		if code := statusOr(fb.uploadStatus, 200); code != 200 {
			c.JSON(code, gin.H{"detail": "Invalid file format"})
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "No file part"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"file_id": "file-" + fh.Filename, "slide_count": len(fb.scenes)})
	})

	api.POST("/extract", func(c *gin.Context) {
		fb.hit("extract")
		if code := statusOr(fb.extractStatus, 200); code != 200 {
			c.JSON(code, gin.H{"detail": "File not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"slides": len(fb.scenes)})
	})

	api.POST("/generate-scenes", func(c *gin.Context) {
		fb.hit("generate-scenes")
		if code := statusOr(fb.scenesStatus, 200); code != 200 {
			c.JSON(code, gin.H{"detail": gin.H{"error": "LLM unavailable", "error_code": "LLM_DOWN"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scenes": fb.scenes, "table_image_urls": fb.tableImages})
	})

	api.POST("/generate-image", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		sceneID, _ := body["scene_id"].(string)

		fb.mu.Lock()
		fb.calls["generate-image"]++
		fb.inFlight++
		if fb.inFlight > fb.maxInFlight {
			fb.maxInFlight = fb.inFlight
		}
		fb.imageCalls = append(fb.imageCalls, sceneID)
		fb.imageBodies = append(fb.imageBodies, body)
		fail := fb.failImage[sceneID]
		hook := fb.imageHook
		fb.mu.Unlock()

		if hook != nil {
			hook(sceneID)
		}

		fb.mu.Lock()
		fb.inFlight--
		fb.mu.Unlock()

		if fail {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": gin.H{"error": "Image model rejected prompt", "error_code": "IMG_FAIL"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scene_id": sceneID, "image_url": "https://img/" + sceneID + ".png"})
	})

	api.POST("/upload-logo", func(c *gin.Context) {
		fb.hit("upload-logo")
		fb.mu.Lock()
		hook := fb.logoHook
		fb.mu.Unlock()
		if hook != nil {
			hook()
		}
		if code := statusOr(fb.logoStatus, 200); code != 200 {
			c.JSON(code, gin.H{"detail": "Storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logo_id": "logo-1", "logo_url": "https://logos/logo-1.png"})
	})

	api.POST("/upload-image", func(c *gin.Context) {
		fb.hit("upload-image")
		fb.mu.Lock()
		fb.uploadImageLogoURL = c.PostForm("logo_url")
		fb.mu.Unlock()
		if _, err := c.FormFile("image"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "No image"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"image_id": "up-1", "image_url": "https://uploads/up-1.png"})
	})

	api.GET("/get_avatars", func(c *gin.Context) {
		fb.hit("get_avatars")
		if code := statusOr(fb.avatarStatus, 200); code != 200 {
			c.JSON(code, gin.H{"detail": "catalog down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": fb.avatars})
	})

	api.GET("/get_voices", func(c *gin.Context) {
		fb.hit("get_voices")
		c.JSON(http.StatusOK, gin.H{"success": true, "data": fb.voices})
	})

	api.POST("/generate-video", func(c *gin.Context) {
		var body map[string]interface{}
		_ = c.ShouldBindJSON(&body)
		fb.mu.Lock()
		fb.calls["generate-video"]++
		fb.videoReq = body
		code := statusOr(fb.videoStatus, 200)
		reply := fb.videoBody
		fb.mu.Unlock()
		c.JSON(code, reply)
	})

	api.GET("/video-status/:id", func(c *gin.Context) {
		fb.mu.Lock()
		fb.calls["video-status"]++
		i := fb.statusCalls
		fb.statusCalls++
		var reply statusReply
		if len(fb.statuses) > 0 {
			if i >= len(fb.statuses) {
				i = len(fb.statuses) - 1
			}
			reply = fb.statuses[i]
		} else {
			reply = statusReply{body: gin.H{"success": true, "video_id": c.Param("id"), "status": "processing"}}
		}
		fb.mu.Unlock()
		c.JSON(statusOr(reply.code, 200), reply.body)
	})

	return r
}

type harness struct {
	fb       *fakeBackend
	wiz      *wizard.Wizard
	recorder *events.Recorder
	prefs    *prefs.MemoryStore
	client   *backend.Client
}

func newHarness(t *testing.T, fb *fakeBackend, opts ...wizard.Option) *harness {
	t.Helper()
	srv := httptest.NewServer(fb.router())
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL+"/api", "test-key", backend.WithRetries(1, time.Millisecond))
	rec := &events.Recorder{}
	store := prefs.NewMemoryStore()

	base := []wizard.Option{
		wizard.WithPublisher(rec),
		wizard.WithLogger(logging.Discard()),
		wizard.WithPrefs(store),
		wizard.WithPollInterval(20 * time.Millisecond),
		wizard.WithProgressTick(2 * time.Millisecond),
		wizard.WithPollTimeout(5 * time.Second),
	}
	wiz := wizard.New(client, append(base, opts...)...)
	return &harness{fb: fb, wiz: wiz, recorder: rec, prefs: store, client: client}
}

func deck(name string) wizard.LocalFile {
	return wizard.LocalFile{Name: name, Data: []byte("pretend this is a slide deck")}
}

func pngFile(t *testing.T, name string) wizard.LocalFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return wizard.LocalFile{Name: name, ContentType: "image/png", Data: buf.Bytes()}
}

// toGenerate drives the wizard up to the Generate step.
func (h *harness) toGenerate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.wiz.ValidateAndStageFile(deck("deck.pptx")))
	require.NoError(t, h.wiz.UploadStagedFile(ctx))
	require.NoError(t, h.wiz.ExtractContent(ctx))
}

// toReview drives the wizard through storyboard generation.
func (h *harness) toReview(t *testing.T) *wizard.BatchReport {
	t.Helper()
	h.toGenerate(t)
	report, err := h.wiz.GenerateStoryboard(context.Background())
	require.NoError(t, err)
	return report
}

func (h *harness) notifications(level string) []string {
	var out []string
	for _, e := range h.recorder.OfType(events.TypeNotification) {
		if e.Payload["level"] == level {
			out = append(out, e.Payload["message"].(string))
		}
	}
	return out
}
