package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/deepdiver/pkg/store"
)

func runSession(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("session requires a subcommand: start, status, write, end, list, cleanup, events")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "start":
		return sessionStart(a, rest)
	case "status":
		return sessionStatus(a, rest)
	case "write":
		return sessionWrite(a, rest)
	case "end":
		return sessionEnd(a, rest)
	case "list":
		return sessionList(a, rest)
	case "cleanup":
		return sessionCleanup(a, rest)
	case "events":
		return sessionEvents(a, rest)
	default:
		return fmt.Errorf("unknown session subcommand %q", sub)
	}
}

func sessionStart(a *app, args []string) error {
	fs := flag.NewFlagSet("session start", flag.ContinueOnError)
	assistant := fs.String("assistant", "claude", "Assistant driving this session")
	agents := fs.String("agents", "", "Comma separated agent names")
	issue := fs.Int("issue", 0, "Issue number the session works on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := store.StartOptions{Assistant: *assistant, IssueNumber: *issue}
	for _, name := range strings.Split(*agents, ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.Agents = append(opts.Agents, name)
		}
	}
	s, err := a.tracker.Start(opts)
	if err != nil {
		return err
	}
	printSuccess("session %s started", s.ID)
	return nil
}

func sessionStatus(a *app, args []string) error {
	fs := flag.NewFlagSet("session status", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	s, err := a.tracker.Current()
	if errors.Is(err, store.ErrNoActiveSession) && *format == formatText {
		printInfo("no active session; start one with: deepdiver session start")
		return nil
	}
	if err != nil {
		return err
	}
	if *format == formatJSON {
		return printJSON(s)
	}

	sum := s.Summary()
	printHeader("Session " + s.ID)
	printField("assistant", s.Assistant)
	if len(s.Agents) > 0 {
		printField("agents", strings.Join(s.Agents, ", "))
	}
	if s.IssueNumber != 0 {
		printField("issue", "#"+strconv.Itoa(s.IssueNumber))
	}
	printField("started", s.CreatedAt.Format(time.RFC3339))
	printField("notebook", orNone(s.ActiveNotebookID))
	printField("notebooks", strconv.Itoa(sum.Notebooks))
	printField("artifacts", strconv.Itoa(sum.Artifacts))
	printField("documents", strconv.Itoa(sum.Documents))
	printField("notes", strconv.Itoa(sum.Notes))
	return nil
}

func sessionWrite(a *app, args []string) error {
	fs := flag.NewFlagSet("session write", flag.ContinueOnError)
	noteType := fs.String("type", "note", "Note type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		return fmt.Errorf("usage: deepdiver session write [-type t] <message>")
	}
	if err := a.tracker.WriteNote(message, *noteType); err != nil {
		return err
	}
	printSuccess("note written")
	return nil
}

func sessionEnd(a *app, args []string) error {
	fs := flag.NewFlagSet("session end", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.tracker.End()
	if err != nil {
		return err
	}
	sum := s.Summary()
	printSuccess("session %s ended: %d notebook(s), %d artifact(s), %d note(s)", s.ID, sum.Notebooks, sum.Artifacts, sum.Notes)
	return nil
}

func sessionList(a *app, args []string) error {
	fs := flag.NewFlagSet("session list", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	summaries, err := a.tracker.List()
	if err != nil {
		return err
	}
	if *format == formatJSON {
		return printJSON(summaries)
	}
	if len(summaries) == 0 {
		printInfo("no sessions")
		return nil
	}
	for _, s := range summaries {
		status := mutedStyle.Render(s.Status)
		if s.Status == store.StatusActive {
			status = successStyle.Render(s.Status)
		}
		fmt.Printf("%s  %s  %-7s %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), status,
			mutedStyle.Render(fmt.Sprintf("%d notebook(s), %d artifact(s)", s.Notebooks, s.Artifacts)))
	}
	return nil
}

func sessionCleanup(a *app, args []string) error {
	fs := flag.NewFlagSet("session cleanup", flag.ContinueOnError)
	maxAge := fs.Duration("max-age", a.cfg.Sessions.MaxAge, "Remove ended sessions older than this")
	keep := fs.Int("keep", a.cfg.Sessions.Keep, "Always keep this many most recent sessions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := a.tracker.Cleanup(*maxAge, *keep)
	if err != nil {
		return err
	}
	printSuccess("removed %d session(s)", n)
	return nil
}

// sessionEvents prints the event log of a session, the active one by
// default.
func sessionEvents(a *app, args []string) error {
	fs := flag.NewFlagSet("session events", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := fs.Arg(0)
	if id == "" {
		s, err := a.tracker.Current()
		if err != nil {
			return err
		}
		id = s.ID
	}
	events, err := a.tracker.Events(id)
	if err != nil {
		return err
	}
	return printJSON(events)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
