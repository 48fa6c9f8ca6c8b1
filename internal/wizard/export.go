package wizard

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type storyboardExport struct {
	AspectRatio    string              `yaml:"aspect_ratio"`
	Avatar         string              `yaml:"avatar,omitempty"`
	Voice          string              `yaml:"voice,omitempty"`
	LogoURL        string              `yaml:"logo_url,omitempty"`
	GeneratedCount int                 `yaml:"generated_count"`
	Scenes         []sceneExport       `yaml:"scenes"`
	TableImageURLs map[string][]string `yaml:"table_image_urls,omitempty"`
	Video          *videoExport        `yaml:"video,omitempty"`
}

type sceneExport struct {
	SceneID             string `yaml:"scene_id"`
	OriginalSlideNumber *int   `yaml:"original_slide_number,omitempty"`
	ImagePrompt         string `yaml:"image_prompt"`
	SpeechScript        string `yaml:"speech_script"`
	ImageURL            string `yaml:"image_url,omitempty"`
	Error               string `yaml:"error,omitempty"`
}

type videoExport struct {
	VideoID  string `yaml:"video_id,omitempty"`
	VideoURL string `yaml:"video_url,omitempty"`
	Status   string `yaml:"status"`
	Error    string `yaml:"error,omitempty"`
}

// ExportStoryboard writes the current storyboard as YAML.
func (w *Wizard) ExportStoryboard(out io.Writer) error {
	st := w.Snapshot()

	doc := storyboardExport{
		AspectRatio:    st.AspectRatio,
		Avatar:         st.SelectedAvatar,
		Voice:          st.SelectedVoice,
		LogoURL:        st.Logo.LogoURL,
		GeneratedCount: st.GeneratedCount,
		Scenes:         make([]sceneExport, len(st.Scenes)),
	}
	if len(st.TableImageURLs) > 0 {
		doc.TableImageURLs = st.TableImageURLs
	}
	for i, s := range st.Scenes {
		doc.Scenes[i] = sceneExport{
			SceneID:             s.SceneID,
			OriginalSlideNumber: s.OriginalSlideNumber,
			ImagePrompt:         s.ImagePrompt,
			SpeechScript:        s.SpeechScript,
			ImageURL:            deref(s.GeneratedImageURL),
			Error:               deref(s.ImageGenError),
		}
	}
	if st.Video != nil {
		doc.Video = &videoExport{
			VideoID:  st.Video.VideoID,
			VideoURL: st.Video.VideoURL,
			Status:   string(st.Video.Status),
			Error:    st.Video.Error,
		}
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode storyboard: %w", err)
	}
	return enc.Close()
}
