package wizard_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"slide2video/internal/events"
	"slide2video/internal/wizard"
)

func TestDeriveStep(t *testing.T) {
	tests := []struct {
		name          string
		fileID        string
		hasExtraction bool
		scenes        int
		want          wizard.Step
	}{
		{"nothing", "", false, 0, wizard.StepUpload},
		{"uploaded", "f1", false, 0, wizard.StepExtract},
		{"extracted", "f1", true, 0, wizard.StepGenerate},
		{"scenes", "f1", true, 3, wizard.StepReview},
		{"scenes win", "", false, 1, wizard.StepReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wizard.DeriveStep(tt.fileID, tt.hasExtraction, tt.scenes))
		})
	}
	assert.Equal(t, "review", wizard.StepReview.String())
}

func TestWizard_FullFlowAdvancesSteps(t *testing.T) {
	h := newHarness(t, newFakeBackend(3))
	ctx := context.Background()

	assert.Equal(t, wizard.StepUpload, h.wiz.Step())

	require.NoError(t, h.wiz.ValidateAndStageFile(deck("quarterly.pptx")))
	st := h.wiz.Snapshot()
	require.NotNil(t, st.File)
	assert.Equal(t, wizard.FileStaged, st.File.Status)
	assert.Equal(t, wizard.StepUpload, st.Step)

	require.NoError(t, h.wiz.UploadStagedFile(ctx))
	st = h.wiz.Snapshot()
	assert.Equal(t, wizard.StepExtract, st.Step)
	assert.Equal(t, "file-quarterly.pptx", st.FileID())
	assert.Equal(t, 100, st.File.Percent)
	assert.Equal(t, wizard.FileDone, st.File.Status)

	require.NoError(t, h.wiz.ExtractContent(ctx))
	assert.Equal(t, wizard.StepGenerate, h.wiz.Step())

	report, err := h.wiz.GenerateStoryboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Generated())
	assert.Equal(t, wizard.StepReview, h.wiz.Step())

	st = h.wiz.Snapshot()
	assert.Equal(t, []string{"https://tables/slide2.png"}, st.TableImageURLs["2"])
	assert.Equal(t, 3, st.GeneratedCount)

	assert.Contains(t, h.notifications(events.LevelSuccess), "quarterly.pptx uploaded successfully!")
	assert.Contains(t, h.notifications(events.LevelSuccess), "Content extracted successfully!")
	assert.Contains(t, h.notifications(events.LevelSuccess), "Storyboard scenes generated!")

	var steps []string
	for _, e := range h.recorder.OfType(events.TypeStepChanged) {
		steps = append(steps, e.Payload["name"].(string))
	}
	assert.Equal(t, []string{"extract", "generate", "review"}, steps)
}

func TestValidateAndStageFile_RejectsWithoutTouchingState(t *testing.T) {
	h := newHarness(t, newFakeBackend(2))

	require.NoError(t, h.wiz.ValidateAndStageFile(deck("deck.pptx")))
	staged := h.wiz.Snapshot().File
	require.NotNil(t, staged)

	err := h.wiz.ValidateAndStageFile(deck("deck.pdf"))
	require.ErrorIs(t, err, wizard.ErrValidation)
	assert.Equal(t, "Only PowerPoint (.ppt/.pptx) files are allowed!", err.Error())

	after := h.wiz.Snapshot().File
	require.NotNil(t, after)
	assert.Equal(t, staged.UID, after.UID)
	assert.Equal(t, "deck.pptx", after.Name)
	assert.Equal(t, 0, h.fb.count("upload"))
	assert.Contains(t, h.notifications(events.LevelError), "Only PowerPoint (.ppt/.pptx) files are allowed!")
}

func TestValidateAndStageFile_Rules(t *testing.T) {
	big := make([]byte, 10<<20)
	pdf := append([]byte("%PDF-1.7\n"), []byte("body")...)

	tests := []struct {
		name    string
		file    wizard.LocalFile
		wantErr string
	}{
		{"pptx by name", deck("a.pptx"), ""},
		{"ppt by name", deck("a.PPT"), ""},
		{"pptx by type", wizard.LocalFile{Name: "upload", ContentType: "application/vnd.openxmlformats-officedocument.presentationml.presentation", Data: []byte("x")}, ""},
		{"wrong extension", deck("notes.docx"), "Only PowerPoint (.ppt/.pptx) files are allowed!"},
		{"pdf content named pptx", wizard.LocalFile{Name: "sneaky.pptx", Data: pdf}, "Only PowerPoint (.ppt/.pptx) files are allowed!"},
		{"exactly 10MB", wizard.LocalFile{Name: "big.pptx", Data: big}, "File must be smaller than 10MB!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, newFakeBackend(1))
			err := h.wiz.ValidateAndStageFile(tt.file)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, wizard.ErrValidation)
			assert.Equal(t, tt.wantErr, err.Error())
			assert.Nil(t, h.wiz.Snapshot().File)
		})
	}
}

func TestValidateAndStageFile_ResetsPreviousDeck(t *testing.T) {
	h := newHarness(t, newFakeBackend(2))
	h.toReview(t)
	require.NotEmpty(t, h.wiz.Snapshot().Scenes)

	require.NoError(t, h.wiz.ValidateAndStageFile(deck("second.pptx")))
	st := h.wiz.Snapshot()
	assert.Empty(t, st.Scenes)
	assert.Nil(t, st.Extraction)
	assert.Equal(t, "second.pptx", st.File.Name)
	assert.Equal(t, wizard.StepUpload, st.Step)
}

func TestUploadStagedFile(t *testing.T) {
	t.Run("nothing staged", func(t *testing.T) {
		h := newHarness(t, newFakeBackend(1))
		assert.ErrorIs(t, h.wiz.UploadStagedFile(context.Background()), wizard.ErrNoStagedFile)
	})

	t.Run("backend rejects", func(t *testing.T) {
		fb := newFakeBackend(1)
		fb.uploadStatus = 400
		h := newHarness(t, fb)
		require.NoError(t, h.wiz.ValidateAndStageFile(deck("deck.pptx")))

		err := h.wiz.UploadStagedFile(context.Background())
		require.Error(t, err)

		st := h.wiz.Snapshot()
		assert.Equal(t, wizard.StepUpload, st.Step)
		assert.Equal(t, wizard.FileError, st.File.Status)
		assert.Empty(t, st.FileID())
		assert.False(t, st.IsUploading)
		assert.Contains(t, h.notifications(events.LevelError), "Upload failed: Invalid file format")
	})

	t.Run("progress reported", func(t *testing.T) {
		h := newHarness(t, newFakeBackend(1))
		require.NoError(t, h.wiz.ValidateAndStageFile(deck("deck.pptx")))
		require.NoError(t, h.wiz.UploadStagedFile(context.Background()))

		progress := h.recorder.OfType(events.TypeUploadProgress)
		require.NotEmpty(t, progress)
		last := progress[len(progress)-1].Payload
		assert.Equal(t, 100, last["percent"])
		assert.Equal(t, "deck", last["target"])
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		h := newHarness(t, newFakeBackend(1))
		require.NoError(t, h.wiz.ValidateAndStageFile(deck("deck.pptx")))
		require.NoError(t, h.wiz.UploadStagedFile(context.Background()))
		require.NoError(t, h.wiz.UploadStagedFile(context.Background()))
		assert.Equal(t, 1, h.fb.count("upload"))
	})
}

func TestExtractContent(t *testing.T) {
	t.Run("no file is a no-op", func(t *testing.T) {
		h := newHarness(t, newFakeBackend(1))
		require.NoError(t, h.wiz.ExtractContent(context.Background()))
		assert.Equal(t, 0, h.fb.count("extract"))
	})

	t.Run("failure keeps the extract step", func(t *testing.T) {
		fb := newFakeBackend(1)
		fb.extractStatus = 404
		h := newHarness(t, fb)
		require.NoError(t, h.wiz.ValidateAndStageFile(deck("deck.pptx")))
		require.NoError(t, h.wiz.UploadStagedFile(context.Background()))

		require.Error(t, h.wiz.ExtractContent(context.Background()))
		st := h.wiz.Snapshot()
		assert.Equal(t, wizard.StepExtract, st.Step)
		assert.False(t, st.IsExtracting)
		assert.Contains(t, h.notifications(events.LevelError), "Extraction failed: File not found")
	})
}

func TestGenerateStoryboard_WithoutExtractionDoesNothing(t *testing.T) {
	h := newHarness(t, newFakeBackend(2))
	report, err := h.wiz.GenerateStoryboard(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 0, h.fb.count("generate-scenes"))
}

func TestGenerateStoryboard_SceneGenerationFailure(t *testing.T) {
	fb := newFakeBackend(2)
	fb.scenesStatus = 503
	h := newHarness(t, fb)
	h.toGenerate(t)

	_, err := h.wiz.GenerateStoryboard(context.Background())
	require.Error(t, err)

	st := h.wiz.Snapshot()
	assert.Equal(t, wizard.StepGenerate, st.Step)
	assert.False(t, st.IsGeneratingScenes)
	assert.Contains(t, h.notifications(events.LevelError), "Generation error: LLM unavailable")
	assert.Equal(t, 0, fb.count("generate-image"))
}

func TestReset_IsIdempotent(t *testing.T) {
	h := newHarness(t, newFakeBackend(2))
	h.toReview(t)
	_, err := h.wiz.AdjustZoom("in")
	require.NoError(t, err)

	h.wiz.Reset()
	first := h.wiz.Snapshot()
	h.wiz.Reset()
	second := h.wiz.Snapshot()

	for _, st := range []wizard.State{first, second} {
		assert.Equal(t, wizard.StepUpload, st.Step)
		assert.Nil(t, st.File)
		assert.Nil(t, st.Extraction)
		assert.Empty(t, st.Scenes)
		assert.Empty(t, st.TableImageURLs)
		assert.Equal(t, 1.0, st.Zoom)
		assert.Equal(t, wizard.LogoNone, st.Logo.Phase)
		assert.Nil(t, st.Video)
	}
	assert.Len(t, h.recorder.OfType(events.TypeWizardReset), 2)
}

func TestReset_KeepsCatalogAndSettings(t *testing.T) {
	h := newHarness(t, newFakeBackend(1))
	require.NoError(t, h.wiz.LoadCatalog(context.Background()))
	require.NoError(t, h.wiz.SelectAvatar("anna"))
	require.NoError(t, h.wiz.SelectVoice("v-de"))
	require.NoError(t, h.wiz.SetAspectRatio("9:16"))

	h.wiz.Reset()

	st := h.wiz.Snapshot()
	assert.Equal(t, "anna", st.SelectedAvatar)
	assert.Equal(t, "v-de", st.SelectedVoice)
	assert.Equal(t, "9:16", st.AspectRatio)
	assert.Len(t, st.Avatars, 3)
}

func TestAdjustZoom_Saturates(t *testing.T) {
	h := newHarness(t, newFakeBackend(1))

	var z float64
	var err error
	for i := 0; i < 25; i++ {
		z, err = h.wiz.AdjustZoom("in")
		require.NoError(t, err)
		assert.LessOrEqual(t, z, 2.0)
	}
	assert.Equal(t, 2.0, z)

	for i := 0; i < 40; i++ {
		z, err = h.wiz.AdjustZoom("out")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, z, 0.5)
	}
	assert.Equal(t, 0.5, z)

	z, err = h.wiz.AdjustZoom("in")
	require.NoError(t, err)
	assert.Equal(t, 0.6, z)

	_, err = h.wiz.AdjustZoom("sideways")
	assert.ErrorIs(t, err, wizard.ErrValidation)
}

func TestSetAspectRatio(t *testing.T) {
	h := newHarness(t, newFakeBackend(1))
	assert.Equal(t, wizard.DefaultAspectRatio, h.wiz.Snapshot().AspectRatio)

	for _, bad := range []string{"", "16", "16:0", "a:b", "-4:3", "1:2:3"} {
		assert.ErrorIs(t, h.wiz.SetAspectRatio(bad), wizard.ErrValidation, bad)
	}
	require.NoError(t, h.wiz.SetAspectRatio("4:3"))
	assert.Equal(t, "4:3", h.wiz.Snapshot().AspectRatio)
}

func TestReadLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logo.png")
	logo := pngFile(t, "logo.png")
	require.NoError(t, os.WriteFile(path, logo.Data, 0o600))

	f, err := wizard.ReadLocalFile(path)
	require.NoError(t, err)
	assert.Equal(t, "logo.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	assert.Equal(t, int64(len(logo.Data)), f.Size())

	_, err = wizard.ReadLocalFile(filepath.Join(dir, "missing.pptx"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to read"))
}
