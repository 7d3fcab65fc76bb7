// main package for the speech synthesis service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-synthesizer/internal/audio"
	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/objectstore"
	"github.com/book-expert/speech-synthesizer/internal/synthesis"
	"github.com/book-expert/speech-synthesizer/internal/worker"
)

func setupLogger(logDir string) (*logger.Logger, error) {
	log, err := logger.New(logDir, "speech-synthesizer.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// A temporary logger covers the window before configuration is
	// available.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

func serve(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	synth := synthesis.New(cfg.Properties(), log)

	// Rendered audio travels through the object store; nothing needs to
	// hit the local disk.
	synth.SetOutput(audio.NewNullSink(audio.DefaultFormat(), true))

	err = synth.Init()
	if err != nil {
		return fmt.Errorf("failed to initialize synthesizer: %w", err)
	}

	defer func() {
		termErr := synth.Term()
		if termErr != nil {
			log.Error("Failed to terminate synthesizer: %v", termErr)
		}
	}()

	natsWorker := worker.NewNatsWorker(
		natsConnection, cfg.NATS.SynthesisSubject, store, synth, log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.System("Speech synthesizer ready. Listening for jobs on subject: %s",
		cfg.NATS.SynthesisSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	log.System("Speech synthesizer shut down.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
