package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"video-contest-ads/internal/adunit"
	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type playOptions struct {
	collector   string
	adID        string
	format      string
	mediaURL    string
	destination string
	title       string
	skipAfter   int
	watch       time.Duration
	pauseAfter  time.Duration
	pauseFor    time.Duration
	skip        bool
	click       bool
	cookies     []string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "adsim",
		Short: "Simulate one ad presentation",
		Long: `Play a single ad through the playback controller and report
impression, view and click beacons to a collector.

The ad ends naturally after --watch unless --skip is set, in which case it is
skipped at that point. Skipping before the threshold fails.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.collector, "collector", "http://localhost:8080", "collector base url")
	f.StringVar(&opts.adID, "ad-id", "", "ad identifier (required)")
	f.StringVar(&opts.format, "format", string(adunit.FormatBumper), "bumper, non_skippable_in_stream or skippable_in_stream")
	f.StringVar(&opts.mediaURL, "media", "https://cdn.example.com/ad.mp4", "media url, empty to simulate a malformed ad")
	f.StringVar(&opts.destination, "destination", "", "click-through url")
	f.StringVar(&opts.title, "title", "", "ad title")
	f.IntVar(&opts.skipAfter, "skip-after", -1, "seconds before a skippable ad may be skipped, negative for the default")
	f.DurationVar(&opts.watch, "watch", 6*time.Second, "playing time before the ad ends or is skipped")
	f.DurationVar(&opts.pauseAfter, "pause-after", 0, "pause once after this much playing time")
	f.DurationVar(&opts.pauseFor, "pause-for", 0, "how long the pause lasts")
	f.BoolVar(&opts.skip, "skip", false, "skip instead of watching to the end")
	f.BoolVar(&opts.click, "click", false, "click through once playback starts")
	f.StringArrayVar(&opts.cookies, "cookie", nil, "name=value cookie sent with beacons, repeatable")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	_ = cmd.MarkFlagRequired("ad-id")

	return cmd
}

func runPlay(ctx context.Context, cmd *cobra.Command, opts *playOptions) error {
	log := logger.SetupTextLogger(opts.logLevel, cmd.ErrOrStderr())

	format, err := adunit.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	cookies, err := parseCookies(opts.cookies)
	if err != nil {
		return err
	}

	client, err := beacon.NewClient(opts.collector, log, beacon.WithCookies(cookies...))
	if err != nil {
		return err
	}

	instance := adunit.Instance{
		AdID:           opts.adID,
		MediaURL:       opts.mediaURL,
		DestinationURL: opts.destination,
		Title:          opts.title,
		Format:         format,
	}
	if opts.skipAfter >= 0 {
		instance.SkipAfterSeconds = &opts.skipAfter
	}

	host := newCLIHost(log)
	ctrl, err := adunit.New(instance, host, client, adunit.WithLogger(log))
	if err != nil {
		return err
	}
	defer client.Wait()

	if ctrl.Renders() {
		if err := play(ctx, ctrl, opts); err != nil {
			ctrl.Unmount()
			return err
		}
	}

	client.Wait()
	fmt.Fprintf(cmd.OutOrStdout(), "ad=%s format=%s outcome=%s watched=%ds\n",
		opts.adID, format, ctrl.State(), ctrl.SecondsWatched())
	return nil
}

func play(ctx context.Context, ctrl *adunit.Controller, opts *playOptions) error {
	ctrl.Mount()
	ctrl.Play()
	if opts.click {
		ctrl.Click()
	}

	remaining := opts.watch
	if opts.pauseAfter > 0 && opts.pauseAfter < opts.watch {
		if err := sleep(ctx, opts.pauseAfter); err != nil {
			return err
		}
		ctrl.Pause()
		if err := sleep(ctx, opts.pauseFor); err != nil {
			return err
		}
		ctrl.Play()
		remaining -= opts.pauseAfter
	}
	if err := sleep(ctx, remaining); err != nil {
		return err
	}

	if opts.skip {
		if !ctrl.Skippable() {
			return fmt.Errorf("%s ads cannot be skipped", ctrl.Instance().Format)
		}
		if !ctrl.Skip() {
			return fmt.Errorf("ad cannot be skipped yet: %d seconds remaining", ctrl.SkipRemaining())
		}
		return nil
	}
	ctrl.End()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func parseCookies(raw []string) ([]*http.Cookie, error) {
	cookies := make([]*http.Cookie, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cookie %q, want name=value", kv)
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies, nil
}

// cliHost stands in for the player page.
type cliHost struct {
	log *logrus.Logger
}

func newCLIHost(log *logrus.Logger) *cliHost {
	return &cliHost{log: log}
}

func (h *cliHost) Completed() {
	h.log.Info("Ad completed")
}

func (h *cliHost) Skipped() {
	h.log.Info("Ad skipped")
}

func (h *cliHost) OpenDestination(url string) {
	h.log.WithField("url", url).Info("Opening destination")
}

func (h *cliHost) PauseMedia() {
	h.log.Debug("Media paused")
}

func (h *cliHost) Progress(p adunit.Progress) {
	entry := h.log.WithField("watched", p.SecondsWatched)
	if p.CanSkip {
		entry.Debug("Skip available")
		return
	}
	entry.WithField("skip_in", p.SkipRemaining).Debug("Skip countdown")
}
