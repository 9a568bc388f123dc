package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/voxprep/voxprep/internal/dotenv"
	"github.com/voxprep/voxprep/pkg/capture"
	"github.com/voxprep/voxprep/pkg/interview"
	"github.com/voxprep/voxprep/pkg/playback"
	"github.com/voxprep/voxprep/pkg/realtime"
	"github.com/voxprep/voxprep/pkg/store"
)

const defaultGatewayURL = "http://127.0.0.1:8790"

type cliConfig struct {
	GatewayURL    string
	GatewayAPIKey string
	SessionID     string
	Endpoint      string
	Threshold     float64
	Verbose       bool
}

func parseCLIConfig(args []string, getenv func(string) string) (cliConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := cliConfig{}
	fs := flag.NewFlagSet("voxprep-interview", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.GatewayURL, "gateway", defaultGatewayURL, "voxprep gateway base URL")
	fs.StringVar(&cfg.SessionID, "session", "", "session id (defaults to a fresh UUID)")
	fs.StringVar(&cfg.Endpoint, "endpoint", "", "override the live API endpoint")
	fs.Float64Var(&cfg.Threshold, "threshold", interview.DefaultVoiceActivityThreshold, "voice activity threshold")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg.GatewayAPIKey = strings.TrimSpace(getenv("VOXPREP_API_KEY"))
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// render prints only what changed between consecutive snapshots.
type render struct {
	out  io.Writer
	last interview.Snapshot
}

func (r *render) show(snap interview.Snapshot) {
	if snap.State != r.last.State {
		fmt.Fprintf(r.out, "\n[session] %s\n", snap.State)
	}
	if snap.Conn != r.last.Conn {
		fmt.Fprintf(r.out, "[connection] %s\n", snap.Conn)
	}
	if snap.CurrentQuestion != r.last.CurrentQuestion && snap.QuestionCount > 0 {
		fmt.Fprintf(r.out, "[progress] question %d of %d\n",
			min(snap.CurrentQuestion+1, snap.QuestionCount), snap.QuestionCount)
	}
	if snap.Mode != r.last.Mode {
		switch snap.Mode {
		case interview.ModeUser:
			fmt.Fprint(r.out, "\r● you      ")
		case interview.ModeAI:
			fmt.Fprint(r.out, "\r● ai       ")
		default:
			fmt.Fprint(r.out, "\r○          ")
		}
	}
	if snap.AISignaledCompletion && !r.last.AISignaledCompletion {
		fmt.Fprintf(r.out, "\n[session] interviewer is wrapping up\n")
	}
	r.last = snap
}

func printReport(out io.Writer, rep *interview.Report) {
	fmt.Fprintf(out, "\n===== interview report =====\n")
	fmt.Fprintf(out, "overall score: %.1f\n\n%s\n", rep.OverallScore, rep.Summary)
	for _, a := range rep.Answers {
		fmt.Fprintf(out, "\nQ%d score %.1f", a.QuestionIndex+1, a.OverallScore)
		if a.Feedback != "" {
			fmt.Fprintf(out, " - %s", a.Feedback)
		}
		for _, s := range a.Suggestions {
			fmt.Fprintf(out, "\n  suggestion: %s", s)
		}
	}
	fmt.Fprintln(out)
}

func readCommands(ctx context.Context, in io.Reader) <-chan string {
	cmds := make(chan string, 1)
	go func() {
		defer close(cmds)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case cmds <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return cmds
}

func run(ctx context.Context, cfg cliConfig, out io.Writer) error {
	logger := newLogger(cfg.Verbose)

	sink, err := playback.NewFFplaySink()
	if err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	defer sink.Close()
	player := playback.NewScheduler(sink, playback.Options{Logger: logger})
	defer player.Close()

	client := store.NewClient(cfg.GatewayURL, store.Options{
		APIKey: cfg.GatewayAPIKey,
		Logger: logger,
	})

	ctrl := interview.NewController(interview.Deps{
		Store: client,
		Dial: func(ctx context.Context, rc realtime.Config) (interview.Transport, error) {
			return realtime.Dial(ctx, rc)
		},
		NewCapture: func() (interview.AudioCapture, error) {
			source, err := capture.NewFFmpegSource()
			if err != nil {
				return nil, err
			}
			return capture.NewEncoder(source, capture.Options{Logger: logger}), nil
		},
		Player: player,
	}, interview.Config{
		SessionID:              cfg.SessionID,
		Endpoint:               cfg.Endpoint,
		VoiceActivityThreshold: cfg.Threshold,
		Logger:                 logger,
	})
	defer ctrl.Dispose()

	fmt.Fprintf(out, "voxprep session %s\n", cfg.SessionID)
	fmt.Fprintf(out, "commands: /end finishes the interview, /retake starts over, /quit exits\n")

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	r := &render{out: out, last: ctrl.Snapshot()}
	cmds := readCommands(ctx, os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-cmds:
			if !ok {
				ctrl.End()
				cmds = nil
				continue
			}
			switch line {
			case "/end":
				ctrl.End()
			case "/retake":
				if err := ctrl.Retake(ctx); err != nil {
					fmt.Fprintf(out, "[error] retake: %v\n", err)
					continue
				}
				r.last = ctrl.Snapshot()
				if err := ctrl.Start(ctx); err != nil {
					return err
				}
			case "/quit":
				return nil
			default:
				fmt.Fprintf(out, "unknown command %q\n", line)
			}

		case snap := <-ctrl.Updates():
			r.show(snap)
			switch snap.State {
			case interview.StateCompleted:
				if snap.Report != nil {
					printReport(out, snap.Report)
				} else if snap.Err != nil {
					fmt.Fprintf(out, "\n[warning] interview saved but report unavailable: %v\n", snap.Err)
				}
				fmt.Fprintf(out, "\n/retake to try again, /quit to exit\n")
			case interview.StateError:
				fmt.Fprintf(out, "\n[error] %v\n/retake to try again, /quit to exit\n", snap.Err)
			}
		}
	}
}

// loadCLIConfig applies the .env file before reading the environment, so a
// key supplied only through .env still reaches the config.
func loadCLIConfig(args []string) (cliConfig, error) {
	if err := dotenv.LoadFile(".env"); err != nil {
		return cliConfig{}, err
	}
	return parseCLIConfig(args, os.Getenv)
}

func main() {
	cfg, err := loadCLIConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxprep-interview: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := run(ctx, cfg, os.Stdout); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "voxprep-interview: %v\n", err)
		os.Exit(1)
	}
}
