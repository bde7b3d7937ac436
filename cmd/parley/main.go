// Command parley runs the voice-conversation gateway: a WebSocket audio
// endpoint backed by Deepgram speech recognition, a Groq-hosted language
// model, and Cartesia speech synthesis, with per-turn latency metrics
// appended to an xlsx spreadsheet.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/klarholt/parley/internal/env"
	"github.com/klarholt/parley/internal/log"
	"github.com/klarholt/parley/pkg/gateway"
	"github.com/klarholt/parley/pkg/llm"
	"github.com/klarholt/parley/pkg/metrics"
	"github.com/klarholt/parley/pkg/session"
	"github.com/klarholt/parley/pkg/stt"
	"github.com/klarholt/parley/pkg/tts"
)

func main() {
	addr := flag.String("addr", env.Get("PARLEY_ADDR", ":8080"), "gateway listen address")
	metricsPath := flag.String("metrics", env.Get("PARLEY_METRICS_PATH", "metrics.xlsx"), "xlsx destination for per-turn metrics")
	debug := flag.Bool("debug", false, "enable debug logging")
	logFile := flag.String("log-file", "", "tee logs to this file")
	flag.Parse()

	// Local development keys live in .env.local; both files are optional.
	godotenv.Load(".env.local")
	godotenv.Load()

	level := env.Get("LOG_LEVEL", "info")
	if *debug {
		level = "debug"
	}
	log.Init(log.Options{Level: level, File: *logFile})
	logger := log.L()

	deepgramKey := env.Required("DEEPGRAM_API_KEY")
	groqKey := env.Required("GROQ_API_KEY")
	cartesiaKey := env.Required("CARTESIA_API_KEY")

	sttOpts := []stt.Option{stt.WithAPIKey(deepgramKey), stt.WithLogger(logger)}
	if model := os.Getenv("DEEPGRAM_MODEL"); model != "" {
		sttOpts = append(sttOpts, stt.WithModel(model))
	}
	sttProvider, err := stt.NewDeepgram(sttOpts...)
	if err != nil {
		logger.Error("deepgram setup failed", "error", err)
		os.Exit(1)
	}
	defer sttProvider.Close()

	llmOpts := []llm.Option{llm.WithAPIKey(groqKey), llm.WithLogger(logger)}
	if model := os.Getenv("GROQ_MODEL"); model != "" {
		llmOpts = append(llmOpts, llm.WithModel(model))
	}
	llmProvider, err := llm.NewGroq(llmOpts...)
	if err != nil {
		logger.Error("groq setup failed", "error", err)
		os.Exit(1)
	}
	defer llmProvider.Close()

	ttsOpts := []tts.Option{tts.WithAPIKey(cartesiaKey), tts.WithLogger(logger)}
	if voice := os.Getenv("CARTESIA_VOICE_ID"); voice != "" {
		ttsOpts = append(ttsOpts, tts.WithVoice(voice))
	}
	ttsProvider, err := tts.NewCartesia(ttsOpts...)
	if err != nil {
		logger.Error("cartesia setup failed", "error", err)
		os.Exit(1)
	}
	defer ttsProvider.Close()

	writer := metrics.NewXLSXWriter(*metricsPath)

	sessCfg := session.DefaultConfig()
	sessCfg.Logger = logger

	newSession := func() (*session.Session, error) {
		return session.New(sessCfg, sttProvider, llmProvider, ttsProvider)
	}
	newRecorder := func() *metrics.Recorder {
		return metrics.NewRecorder(writer, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gwCfg := gateway.Config{Addr: *addr, SampleRate: sessCfg.InputSampleRate, Logger: logger}
	srv := gateway.New(gwCfg, newSession, newRecorder)
	logger.Info("parley starting", "addr", *addr, "metrics", *metricsPath)
	if err := srv.Run(ctx); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
	logger.Info("parley stopped")
}
