package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/deepdiver/pkg/config"
	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/jobs"
)

// jobResult is the JSON shape of one finished job.
type jobResult struct {
	Kind     string            `json:"kind"`
	Tag      string            `json:"tag"`
	State    string            `json:"state"`
	Reason   string            `json:"reason,omitempty"`
	Error    string            `json:"error,omitempty"`
	Elapsed  string            `json:"elapsed"`
	Settings map[string]string `json:"settings,omitempty"`
	Artifact *extract.Metadata `json:"artifact,omitempty"`
}

func newJobResult(d jobs.Descriptor, out jobs.Outcome, err error) jobResult {
	r := jobResult{
		Kind:     string(d.Kind),
		Tag:      d.Tag,
		State:    out.State.String(),
		Reason:   out.Reason,
		Elapsed:  out.Elapsed.Round(time.Second).String(),
		Settings: d.Params.Settings(),
		Artifact: out.Metadata,
	}
	switch {
	case err != nil:
		r.Error = err.Error()
		if out.Tag == "" {
			r.State = "error"
		}
	case out.Err != nil:
		r.Error = out.Err.Error()
	}
	return r
}

func (r jobResult) ok() bool {
	return r.Error == "" && r.State == "completed"
}

// runGenerate submits one job per requested kind and waits for all of them.
func runGenerate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	kindList := fs.String("kinds", string(jobs.KindAudio), "Comma separated artifact kinds: audio, video, mindmap, report, flashcards, quiz")
	instructions := fs.String("instructions", "", "Instructions applied to every kind that accepts them")
	format := fs.String("format", formatText, "Output format: text or json")
	plain := fs.Bool("plain", false, "Print results as jobs finish instead of the live view")
	var sources, sets multiFlag
	fs.Var(&sources, "source", "Glob over source titles to select (repeatable)")
	fs.Var(&sets, "set", "Setting override as kind.key=value, e.g. audio.format=debate (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	kinds, err := parseKinds(*kindList)
	if err != nil {
		return err
	}
	overrides, err := parseSettings(sets, kinds)
	if err != nil {
		return err
	}
	nbID, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}
	descs, err := buildDescriptors(a.cfg.Config, nbID, kinds, overrides, *instructions, sources)
	if err != nil {
		return err
	}

	if err := a.ensureSession(); err != nil {
		return err
	}
	d, err := a.driver()
	if err != nil {
		return err
	}
	engine := a.engine(d)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	live := !*plain && *format == formatText && isTerminal(os.Stdout)
	var results []jobResult
	if live {
		results, err = runLive(ctx, cancel, engine, descs)
	} else {
		results, err = runPlain(ctx, engine, descs, *format == formatText)
	}
	if err != nil {
		return err
	}

	if *format == formatJSON {
		if err := printJSON(results); err != nil {
			return err
		}
	} else if live {
		printResults(results)
	}

	failed := 0
	for _, r := range results {
		if !r.ok() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs did not complete", failed, len(results))
	}
	return nil
}

// parseKinds parses a comma separated kind list, dropping duplicates.
func parseKinds(s string) ([]jobs.Kind, error) {
	var kinds []jobs.Kind
	seen := make(map[jobs.Kind]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := jobs.ParseKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("at least one kind is required")
	}
	return kinds, nil
}

// parseSettings groups kind.key=value overrides by kind. Every override must
// name a requested kind.
func parseSettings(sets []string, kinds []jobs.Kind) (map[jobs.Kind]map[string]string, error) {
	out := make(map[jobs.Kind]map[string]string)
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid setting %q (expected kind.key=value)", s)
		}
		kindName, field, ok := strings.Cut(key, ".")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid setting %q (expected kind.key=value)", s)
		}
		kind, err := jobs.ParseKind(kindName)
		if err != nil {
			return nil, err
		}
		requested := false
		for _, k := range kinds {
			requested = requested || k == kind
		}
		if !requested {
			return nil, fmt.Errorf("setting %q is for %s, which was not requested", s, kind)
		}
		if out[kind] == nil {
			out[kind] = make(map[string]string)
		}
		out[kind][strings.TrimSpace(field)] = value
	}
	return out, nil
}

func buildDescriptors(cfg *config.Config, notebookID string, kinds []jobs.Kind, overrides map[jobs.Kind]map[string]string, instructions string, sources []string) ([]jobs.Descriptor, error) {
	descs := make([]jobs.Descriptor, 0, len(kinds))
	for _, k := range kinds {
		override := jobs.MergeSettings(nil, overrides[k])
		if instructions != "" && k != jobs.KindMindMap {
			if _, set := override["instructions"]; !set {
				override["instructions"] = instructions
			}
		}
		params, err := cfg.JobParams(k, override)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		d := jobs.NewDescriptor(notebookID, params, sources...)
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// submitAll runs every descriptor on its own goroutine and reports each
// result through done. Job failures never cancel the other jobs.
func submitAll(ctx context.Context, engine *jobs.Engine, descs []jobs.Descriptor, done func(int, jobResult)) {
	var g errgroup.Group
	for i, d := range descs {
		g.Go(func() error {
			out, err := engine.Submit(ctx, d)
			done(i, newJobResult(d, out, err))
			return nil
		})
	}
	_ = g.Wait()
}

func runPlain(ctx context.Context, engine *jobs.Engine, descs []jobs.Descriptor, verbose bool) ([]jobResult, error) {
	results := make([]jobResult, len(descs))
	var mu sync.Mutex
	if verbose {
		printHeader(fmt.Sprintf("Generating %d artifact(s) in notebook %s", len(descs), descs[0].NotebookID))
	}
	submitAll(ctx, engine, descs, func(i int, r jobResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		if verbose {
			printResult(r)
		}
	})
	return results, nil
}

func runLive(ctx context.Context, cancel context.CancelFunc, engine *jobs.Engine, descs []jobs.Descriptor) ([]jobResult, error) {
	m := newProgressModel(descs, engine.Running, cancel)
	p := tea.NewProgram(m)

	go submitAll(ctx, engine, descs, func(i int, r jobResult) {
		p.Send(jobDoneMsg{index: i, result: r})
	})

	final, err := p.Run()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to run progress view: %w", err)
	}
	return final.(*progressModel).results(), nil
}

func printResult(r jobResult) {
	if r.ok() {
		title := "untitled"
		if r.Artifact != nil {
			title = fmt.Sprintf("%q (%s)", r.Artifact.Title, r.Artifact.ArtifactID)
		}
		printSuccess("%-10s %s in %s", r.Kind, title, r.Elapsed)
		return
	}
	printError("%-10s %s: %s", r.Kind, r.State, r.Error)
}

func printResults(results []jobResult) {
	for _, r := range results {
		printResult(r)
	}
}
