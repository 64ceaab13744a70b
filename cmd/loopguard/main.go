package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/codefionn/loopguard/internal/config"
	"github.com/codefionn/loopguard/internal/dispatch"
	"github.com/codefionn/loopguard/internal/logger"
	"github.com/codefionn/loopguard/internal/render"
	"github.com/codefionn/loopguard/internal/turn"
)

var (
	configPath = flag.String("config", "", "Path to JSON configuration file")
	transcript = flag.String("transcript", "-", "JSONL transcript of turns to replay (- for stdin)")
	sessionID  = flag.String("session", "replay", "Session id used for the replay")
	detail     = flag.String("detail", "brief", "Rendering detail for per-turn output: brief, summary or full")
	logLevel   = flag.String("log-level", "", "Override configured log level")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run carries the real work so deferred cleanup executes before the
// process exits with a status code.
func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		log.Fatalf("Failed to initialize logger: %v", initErr)
	}
	defer func() {
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	in := os.Stdin
	if *transcript != "-" {
		f, openErr := os.Open(*transcript)
		if openErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to open transcript: %v\n", openErr)
			return 1
		}
		defer f.Close()
		in = f
	}

	intervention, err := replay(cfg, in, *sessionID, parseDetail(*detail))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		return 1
	}
	if intervention {
		return 2
	}
	return 0
}

func parseDetail(s string) render.Detail {
	switch s {
	case "full":
		return render.DetailFull
	case "summary":
		return render.DetailSummary
	default:
		return render.DetailBrief
	}
}

// replay feeds each transcript line through the pipeline and prints the
// per-turn verdict. Returns whether any turn exhausted the escalation
// ladder.
func replay(cfg *config.Config, in io.Reader, sessionID string, detail render.Detail) (bool, error) {
	p := dispatch.New(cfg, nil)
	ctx := context.Background()

	intervention := false
	lineNo := 0

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var t turn.Turn
		if err := json.Unmarshal(line, &t); err != nil {
			return intervention, fmt.Errorf("line %d: %w", lineNo, err)
		}

		agg, out, err := p.ProcessTurn(ctx, sessionID, &t)
		if err != nil {
			return intervention, fmt.Errorf("line %d: %w", lineNo, err)
		}

		fmt.Printf("turn %3d  %-9s  level %d  %s\n",
			lineNo, agg.Severity, out.Level, render.Describe(agg, detail))

		if out.Directive != nil && detail == render.DetailFull {
			fmt.Printf("          directive %s:\n%s\n", out.Directive.ID, out.Directive.Rendered)
		}
		if out.NeedsIntervention {
			intervention = true
			fmt.Printf("          !! escalation exhausted, external intervention required\n")
		}
	}
	if err := scanner.Err(); err != nil {
		return intervention, err
	}

	st := p.Stats()
	fmt.Printf("replayed %d turns, final level %d, escalated sessions %d\n",
		lineNo, p.Level(sessionID), st.EscalatedSessions)
	return intervention, nil
}
