// Command wizard runs the whole deck-to-video flow from the terminal:
//
//	wizard -deck slides.pptx [-logo logo.png] [-voice id] [-avatar id] [-aspect 16:9] [-export storyboard.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skip2/go-qrcode"
	"slide2video/internal/app"
	"slide2video/internal/config"
	"slide2video/internal/events"
	"slide2video/internal/logging"
	"slide2video/internal/wizard"
)

type options struct {
	deck      string
	logo      string
	avatar    string
	voice     string
	aspect    string
	export    string
	skipVideo bool
}

func main() {
	var opts options
	flag.StringVar(&opts.deck, "deck", "", "PowerPoint deck to convert (required)")
	flag.StringVar(&opts.logo, "logo", "", "optional JPG/PNG logo applied to generated images")
	flag.StringVar(&opts.avatar, "avatar", wizard.NoAvatarID, "avatar id for the presenter")
	flag.StringVar(&opts.voice, "voice", "", "voice id (defaults to the first available voice)")
	flag.StringVar(&opts.aspect, "aspect", "", "image aspect ratio, e.g. 16:9")
	flag.StringVar(&opts.export, "export", "", "write the storyboard as YAML to this file")
	flag.BoolVar(&opts.skipVideo, "skip-video", false, "stop after the storyboard")
	flag.Parse()

	if opts.deck == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, events.PublisherFunc(printEvent))
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if err := run(ctx, a.Wizard, opts); err != nil {
		a.Close()
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, w *wizard.Wizard, opts options) error {
	deck, err := wizard.ReadLocalFile(opts.deck)
	if err != nil {
		return err
	}
	if err := w.ValidateAndStageFile(deck); err != nil {
		return err
	}
	if err := w.UploadStagedFile(ctx); err != nil {
		return err
	}
	if err := w.ExtractContent(ctx); err != nil {
		return err
	}

	if opts.aspect != "" {
		if err := w.SetAspectRatio(opts.aspect); err != nil {
			return err
		}
	}
	if opts.logo != "" {
		logo, err := wizard.ReadLocalFile(opts.logo)
		if err != nil {
			return err
		}
		if err := w.HandleLogoUpload(ctx, logo); err != nil {
			return err
		}
	}

	report, err := w.GenerateStoryboard(ctx)
	if err != nil {
		return err
	}
	if report != nil {
		fmt.Printf("\nStoryboard: %d of %d scene images generated\n", report.Generated(), len(report.Results))
		for _, r := range report.Results {
			if !r.OK() {
				fmt.Printf("  %s: %v\n", r.SceneID, r.Err)
			}
		}
	}

	if opts.export != "" {
		if err := exportStoryboard(w, opts.export); err != nil {
			return err
		}
		fmt.Printf("Storyboard written to %s\n", opts.export)
	}

	if opts.skipVideo {
		return nil
	}

	if err := w.LoadCatalog(ctx); err != nil {
		return err
	}
	if opts.voice != "" {
		if err := w.SelectVoice(opts.voice); err != nil {
			return err
		}
	}

	result, err := w.RequestVideoGeneration(ctx, opts.avatar)
	if err != nil {
		if errors.Is(err, wizard.ErrVideoFailed) && result.ErrorCode != "" {
			return fmt.Errorf("%w (code: %s)", err, result.ErrorCode)
		}
		return err
	}

	fmt.Printf("\nVideo ready: %s\n", result.VideoURL)
	if qr, err := qrcode.New(result.VideoURL, qrcode.Medium); err == nil {
		fmt.Println(qr.ToSmallString(false))
	}
	return nil
}

func exportStoryboard(w *wizard.Wizard, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := w.ExportStoryboard(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printEvent(e events.Event) {
	switch e.Type {
	case events.TypeNotification:
		fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Payload["level"], e.Payload["message"])
	case events.TypeBatchProgress:
		fmt.Fprintf(os.Stderr, "  generating image %v/%v (%s)\n", e.Payload["current"], e.Payload["total"], e.Payload["scene_id"])
	case events.TypeVideoProgress:
		fmt.Fprintf(os.Stderr, "\r  rendering video... %v%%", e.Payload["progress"])
	case events.TypeVideoCompleted, events.TypeVideoFailed:
		fmt.Fprintln(os.Stderr)
	}
}
