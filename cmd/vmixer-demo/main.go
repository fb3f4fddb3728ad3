package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keycodingyfq/soft-compositor/captions"
	"github.com/keycodingyfq/soft-compositor/compositor"
	"github.com/keycodingyfq/soft-compositor/ingest/srt"
	"github.com/keycodingyfq/soft-compositor/media"
	"github.com/keycodingyfq/soft-compositor/transport/quicout"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srtAddr := envOr("SRT_ADDR", ":6000")
	quicAddr := envOr("QUIC_ADDR", ":6001")
	maxInput := envUint8("MAX_INPUT", 8)
	width := envUint32("CANVAS_WIDTH", 1280)
	height := envUint32("CANVAS_HEIGHT", 720)

	tlsConf, cert, err := quicout.SelfSignedTLSConfig(quicAddr, 14*24*time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	slog.Info("vmixer-demo starting",
		"version", version,
		"srt", srtAddr,
		"quic", quicAddr,
		"max_input", maxInput,
		"canvas", [2]uint32{width, height},
	)

	mixer := compositor.New(compositor.Config{
		MaxInput:   maxInput,
		Width:      width,
		Height:     height,
		Background: media.YUVColor{Y: 16, Cb: 128, Cr: 128}, // black, Rec.601 limited (studio) range
		Crop:       true,
	}, nil)
	defer mixer.Close()

	out := quicout.NewSink(nil)
	for _, fps := range []uint32{30, 15} {
		if _, _, err := mixer.AddOutput(fps, out); err != nil {
			slog.Warn("could not register default output", "fps", fps, "error", err)
		}
	}

	captionBridge := captions.NewBridge(mixer, nil)
	ingestSrv := srt.NewServer(srtAddr, mixer, nil).WithCaptionSink(captionBridge)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ingestSrv.Start(ctx)
	})

	g.Go(func() error {
		return out.Serve(ctx, quicAddr, tlsConf)
	})

	g.Go(func() error {
		captionBridge.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint32(key string, fallback uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n uint32
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + uint32(r-'0')
	}
	return n
}

func envUint8(key string, fallback uint8) uint8 {
	n := envUint32(key, uint32(fallback))
	if n > 255 {
		return fallback
	}
	return uint8(n)
}
