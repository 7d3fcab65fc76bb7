// Command tts-client synthesizes a single piece of text to a WAV file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-synthesizer/internal/audio"
	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
	"github.com/book-expert/speech-synthesizer/internal/engine"
	"github.com/book-expert/speech-synthesizer/internal/eventhub"
	"github.com/book-expert/speech-synthesizer/internal/synthesis"
)

const (
	flagTextDesc       = "Text to synthesize"
	flagSsmlDesc       = "Treat the text as SSML markup"
	flagOutputDesc     = "Output file path (.wav)"
	flagPropertiesDesc = "Path to a TOML file of synthesis properties"
	flagHealthDesc     = "Check backend health and exit"
	flagVerboseDesc    = "Print lifecycle events while synthesizing"

	defaultOutputFile  = "output.wav"
	healthCheckTimeout = 10 * time.Second
)

type appFlags struct {
	text       string
	ssml       bool
	output     string
	properties string
	health     bool
	verbose    bool
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.BoolVar(&flags.ssml, "ssml", false, flagSsmlDesc)
	flag.StringVar(&flags.output, "output", defaultOutputFile, flagOutputDesc)
	flag.StringVar(&flags.properties, "properties", "", flagPropertiesDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.BoolVar(&flags.verbose, "verbose", false, flagVerboseDesc)
	flag.Parse()

	return flags
}

func loadProperties(path string) (*config.Properties, error) {
	props := config.NewProperties()

	if path == "" {
		return props, nil
	}

	err := props.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load properties from %s: %w", path, err)
	}

	return props, nil
}

func run() error {
	flags := parseFlags()

	props, err := loadProperties(flags.properties)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(os.TempDir(), "tts-client.log")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = clientLog.Close() }()

	if flags.health {
		return handleHealthCheck(props, clientLog)
	}

	if flags.text == "" {
		flag.Usage()

		return engine.ErrTextEmpty
	}

	return synthesize(props, clientLog, flags)
}

func handleHealthCheck(props core.Properties, clientLog *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	adapter := engine.NewRESTAdapter(props, clientLog)

	err := adapter.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("Backend is not healthy: %v\n", err)

		return err
	}

	fmt.Println("Backend is healthy")

	return nil
}

func synthesize(props core.Properties, clientLog *logger.Logger, flags appFlags) error {
	synth := synthesis.New(props, clientLog)

	err := synth.Init()
	if err != nil {
		return fmt.Errorf("failed to initialize synthesizer: %w", err)
	}

	defer func() { _ = synth.Term() }()

	sink, err := audio.NewFileSink(flags.output, audio.DefaultFormat(), true)
	if err != nil {
		return fmt.Errorf("failed to open output file %s: %w", flags.output, err)
	}

	synth.SetOutput(sink)

	if flags.verbose {
		watchEvents(synth)
	}

	result, err := synth.Speak(context.Background(), flags.text, flags.ssml)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	if result.Reason == core.ReasonCanceled {
		message := ""
		if result.Cancellation != nil {
			message = result.Cancellation.Message
		}

		return fmt.Errorf("%w: %s", engine.ErrServiceError, message)
	}

	fmt.Printf("Generated: %s (%d bytes)\n", sink.Path(), len(result.Audio))

	return nil
}

func watchEvents(synth *synthesis.Synthesizer) {
	const owner = "tts-client"

	hub := synth.Events()

	hub.Connect(eventhub.CategoryStarted, owner, func(event eventhub.Event) {
		fmt.Printf("started: %s\n", event.Result.RequestID)
	})
	hub.Connect(eventhub.CategorySynthesizing, owner, func(event eventhub.Event) {
		fmt.Printf("chunk: %d bytes\n", len(event.Result.Audio))
	})
	hub.Connect(eventhub.CategoryCompleted, owner, func(event eventhub.Event) {
		fmt.Printf("completed: %s\n", event.Result.RequestID)
	})
	hub.Connect(eventhub.CategoryCanceled, owner, func(event eventhub.Event) {
		fmt.Printf("canceled: %s\n", event.Result.Cancellation.Message)
	})
	hub.ConnectWordBoundary(owner, func(boundary core.WordBoundary) {
		fmt.Printf("word at text offset %d (%d chars)\n",
			boundary.TextOffset, boundary.WordLength)
	})
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}
