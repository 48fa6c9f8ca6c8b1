package models

type EditSceneRequest struct {
	Field string  `json:"field" binding:"required"`
	Value *string `json:"value"`
}

type ReferenceImageRequest struct {
	ReferenceImageURL string `json:"reference_image_url" binding:"required"`
}

type ZoomRequest struct {
	Direction string `json:"direction" binding:"required,oneof=in out"`
}

// SettingsRequest updates wizard selections. Omitted fields are unchanged.
type SettingsRequest struct {
	AspectRatio *string `json:"aspect_ratio,omitempty"`
	AvatarID    *string `json:"avatar_id,omitempty"`
	VoiceID     *string `json:"voice_id,omitempty"`
}

type VideoRequest struct {
	// AvatarID may be the "WithoutAvatar_id" sentinel or empty to keep the
	// current selection.
	AvatarID string `json:"avatar_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
