package wizard

import (
	"encoding/json"

	"slide2video/internal/models"
)

// Step is the wizard position. It is always derived from data, never stored.
type Step int

const (
	StepUpload Step = iota
	StepExtract
	StepGenerate
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepExtract:
		return "extract"
	case StepGenerate:
		return "generate"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

// DeriveStep maps the minimal wizard data to a step.
func DeriveStep(fileID string, hasExtraction bool, sceneCount int) Step {
	switch {
	case sceneCount > 0:
		return StepReview
	case hasExtraction:
		return StepGenerate
	case fileID != "":
		return StepExtract
	default:
		return StepUpload
	}
}

type FileStatus string

const (
	FileStaged    FileStatus = "staged"
	FileUploading FileStatus = "uploading"
	FileDone      FileStatus = "done"
	FileError     FileStatus = "error"
)

type UploadedFile struct {
	UID     string     `json:"uid"`
	Name    string     `json:"name"`
	Size    int64      `json:"size"`
	Percent int        `json:"percent"`
	FileID  string     `json:"file_id,omitempty"`
	Status  FileStatus `json:"status"`
}

type GenerationProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Scene fields are replaced, never mutated in place, so copies of a scene
// slice can share the pointed-to values.
type Scene struct {
	SceneID             string              `json:"scene_id"`
	OriginalSlideNumber *int                `json:"original_slide_number"`
	ImagePrompt         string              `json:"image_prompt"`
	SpeechScript        string              `json:"speech_script"`
	GeneratedImageURL   *string             `json:"generated_image_url"`
	IsGenerating        bool                `json:"isGenerating"`
	IsQueued            bool                `json:"isQueued"`
	IsUploading         bool                `json:"isUploading"`
	GenerationProgress  *GenerationProgress `json:"generationProgress"`
	ImageGenError       *string             `json:"imageGenError"`
}

// HasImage reports a successful image that is not shadowed by a later error.
func (s Scene) HasImage() bool {
	return s.GeneratedImageURL != nil && *s.GeneratedImageURL != "" && s.ImageGenError == nil
}

func (s Scene) busy() bool {
	return s.IsGenerating || s.IsQueued || s.IsUploading
}

type LogoPhase string

const (
	LogoNone        LogoPhase = "none"
	LogoProvisional LogoPhase = "provisional"
	LogoConfirmed   LogoPhase = "confirmed"
)

// Logo is provisional while its upload is in flight: only the local preview
// exists. LogoID and LogoURL are set only once the backend confirmed them.
type Logo struct {
	Phase   LogoPhase `json:"phase"`
	Name    string    `json:"name,omitempty"`
	Preview string    `json:"preview,omitempty"`
	LogoID  string    `json:"logo_id,omitempty"`
	LogoURL string    `json:"logo_url,omitempty"`
}

type VideoStatus string

const (
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

type VideoResult struct {
	VideoID   string      `json:"video_id,omitempty"`
	VideoURL  string      `json:"video_url,omitempty"`
	Status    VideoStatus `json:"status"`
	Progress  int         `json:"progress"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
}

func (v VideoResult) Terminal() bool {
	return v.Status == VideoCompleted || v.Status == VideoFailed
}

// State is a read-only snapshot of the wizard.
type State struct {
	Step               Step                `json:"step"`
	StepName           string              `json:"step_name"`
	File               *UploadedFile       `json:"file"`
	IsUploading        bool                `json:"is_uploading"`
	Extraction         json.RawMessage     `json:"extraction,omitempty"`
	IsExtracting       bool                `json:"is_extracting"`
	IsGeneratingScenes bool                `json:"is_generating_scenes"`
	IsGeneratingImages bool                `json:"is_generating_images"`
	Scenes             []Scene             `json:"scenes"`
	TableImageURLs     map[string][]string `json:"table_image_urls"`
	GeneratedCount     int                 `json:"generated_count"`
	Logo               Logo                `json:"logo"`
	Zoom               float64             `json:"zoom"`
	AspectRatio        string              `json:"aspect_ratio"`
	Avatars            []models.Avatar     `json:"avatars"`
	Voices             []models.Voice      `json:"voices"`
	SelectedAvatar     string              `json:"selected_avatar"`
	SelectedVoice      string              `json:"selected_voice"`
	IsGeneratingVideo  bool                `json:"is_generating_video"`
	Video              *VideoResult        `json:"video"`
}

// FileID returns the backend id of the uploaded deck, if any.
func (s State) FileID() string {
	if s.File == nil {
		return ""
	}
	return s.File.FileID
}

// Scene returns the scene with the given id.
func (s State) Scene(id string) (Scene, bool) {
	for _, sc := range s.Scenes {
		if sc.SceneID == id {
			return sc, true
		}
	}
	return Scene{}, false
}

func countGenerated(scenes []Scene) int {
	n := 0
	for _, s := range scenes {
		if s.HasImage() {
			n++
		}
	}
	return n
}

func strPtr(s string) *string {
	return &s
}
