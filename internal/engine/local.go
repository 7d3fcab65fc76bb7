package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
)

const (
	defaultLocalBinary = "chatllm"
	defaultLocalVoice  = "narrator"
)

// LocalAdapter shells out to a local chatllm binary that exports a WAV
// file. Useful on machines with a model on disk and no running service.
type LocalAdapter struct {
	binaryPath    string
	modelPath     string
	snacModelPath string
	voice         string
	log           *logger.Logger

	mu  sync.Mutex
	out core.AudioOutput
}

// NewLocalAdapter builds a local adapter. A model path is required.
func NewLocalAdapter(props core.Properties, log *logger.Logger) (*LocalAdapter, error) {
	modelPath := props.GetString(config.PropLocalModel, "")
	if modelPath == "" {
		return nil, ErrLocalModelPath
	}

	return &LocalAdapter{
		binaryPath:    props.GetString(config.PropLocalBinary, defaultLocalBinary),
		modelPath:     modelPath,
		snacModelPath: props.GetString(config.PropLocalSnacModel, ""),
		voice:         props.GetString(config.PropVoice, defaultLocalVoice),
		log:           log,
		mu:            sync.Mutex{},
		out:           nil,
	}, nil
}

// SetOutput assigns the destination for synthesized audio.
func (a *LocalAdapter) SetOutput(out core.AudioOutput) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.out = out
}

func (a *LocalAdapter) output() core.AudioOutput {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.out
}

// Speak runs the binary, reads the exported WAV and forwards it to the
// output.
func (a *LocalAdapter) Speak(ctx context.Context, text string, _ bool, requestID string) error {
	if strings.TrimSpace(text) == "" {
		return ErrTextEmpty
	}

	exportPath := filepath.Join(
		os.TempDir(),
		"synthesis-"+uuid.NewString()+".wav",
	)
	defer func() { _ = os.Remove(exportPath) }()

	args := a.buildArgs(text, exportPath)
	cmd := exec.CommandContext(ctx, a.binaryPath, args...)

	combined, err := cmd.CombinedOutput()
	if err != nil {
		a.log.Error("Local synthesis failed for request %s: %s", requestID, string(combined))

		return fmt.Errorf("local synthesis command failed: %w", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		return fmt.Errorf("failed to read exported audio: %w", err)
	}

	err = writeAll(a.output(), data)
	if err != nil {
		return err
	}

	a.log.Info("Local synthesis completed for request %s (%d bytes)", requestID, len(data))

	return nil
}

func (a *LocalAdapter) buildArgs(text, exportPath string) []string {
	args := []string{
		"-m", a.modelPath,
		"-p", a.voice + ": " + text,
		"--tts_export", exportPath,
	}

	if a.snacModelPath != "" {
		args = append(args, "--snac_model", a.snacModelPath)
	}

	return args
}

// Term releases the adapter. Processes are per request, nothing persists.
func (a *LocalAdapter) Term() error {
	return nil
}
