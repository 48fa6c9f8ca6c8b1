package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message    string `json:"message,omitempty"`
	Filename   string `json:"filename,omitempty"`
	FileID     string `json:"file_id"`
	SlideCount int    `json:"slide_count,omitempty"`
}

type ExtractRequest struct {
	FileID string `json:"file_id"`
}

type GenerateScenesRequest struct {
	ExtractionData json.RawMessage `json:"extraction_data"`
}

// SceneOut is a raw storyboard scene as produced by the backend.
type SceneOut struct {
	SceneID             string  `json:"scene_id"`
	OriginalSlideNumber *int    `json:"original_slide_number"`
	ImagePrompt         string  `json:"image_prompt"`
	SpeechScript        string  `json:"speech_script"`
	ImageURL            *string `json:"image_url,omitempty"`
}

// GenerateScenesResponse carries the ordered scenes and the table images
// keyed by slide number.
type GenerateScenesResponse struct {
	FileID         string              `json:"file_id,omitempty"`
	Scenes         []SceneOut          `json:"scenes"`
	TableImageURLs map[string][]string `json:"table_image_urls"`
}

type GenerateImageRequest struct {
	Prompt      string  `json:"prompt"`
	SceneID     string  `json:"scene_id"`
	LogoID      *string `json:"logo_id"`
	LogoURL     *string `json:"logo_url"`
	AspectRatio string  `json:"aspect_ratio"`
}

type GenerateImageResponse struct {
	SceneID  string `json:"scene_id,omitempty"`
	ImageURL string `json:"image_url"`
	LogoURL  string `json:"logo_url,omitempty"`
}

type LogoUploadResponse struct {
	LogoID  string `json:"logo_id"`
	LogoURL string `json:"logo_url"`
}

type ImageUploadResponse struct {
	ImageID  string `json:"image_id,omitempty"`
	ImageURL string `json:"image_url"`
}

type Avatar struct {
	AvatarID        string   `json:"avatar_id"`
	AvatarName      string   `json:"avatar_name"`
	Gender          string   `json:"gender,omitempty"`
	PreviewImageURL string   `json:"preview_image_url"`
	PreviewVideoURL string   `json:"preview_video_url"`
	Premium         bool     `json:"premium"`
	Type            *string  `json:"type"`
	Tags            []string `json:"tags"`
	DefaultVoiceID  *string  `json:"default_voice_id"`
}

type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
}

type AvatarsResponse struct {
	Success bool     `json:"success"`
	Data    []Avatar `json:"data"`
}

type VoicesResponse struct {
	Success bool    `json:"success"`
	Data    []Voice `json:"data"`
}

// VideoScene is one scene as submitted for rendering.
type VideoScene struct {
	SceneID             string `json:"scene_id,omitempty"`
	OriginalSlideNumber *int   `json:"original_slide_number"`
	ImageURL            string `json:"image_url"`
	SpeechScript        string `json:"speech_script"`
}

type GenerateVideoRequest struct {
	Scenes   []VideoScene `json:"scenes"`
	AvatarID *string      `json:"avatar_id"`
	VoiceID  string       `json:"voice_id"`
}

type GenerateVideoResponse struct {
	Success  *bool  `json:"success,omitempty"`
	VideoID  string `json:"video_id"`
	VideoURL string `json:"video_url,omitempty"`
	Status   string `json:"status,omitempty"`
}

type VideoStatusResponse struct {
	Success    *bool      `json:"success,omitempty"`
	VideoID    string     `json:"video_id"`
	VideoURL   string     `json:"video_url"`
	Status     string     `json:"status"`
	Error      FlexString `json:"error"`
	ErrorCode  FlexString `json:"error_code"`
	HTTPStatus FlexString `json:"http_status"`
}

// FlexString accepts a JSON string, number, bool or null. Error codes come
// back as either strings or integers depending on the upstream service.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = FlexString(strconv.FormatBool(b))
		return nil
	}
	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
