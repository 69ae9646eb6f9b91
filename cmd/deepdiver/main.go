// Package main provides the deepdiver command, which drives NotebookLM in an
// already running Chrome to create notebooks, upload sources and generate
// Studio artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

// CLIConfig holds the global command line flags.
type CLIConfig struct {
	ConfigPath  string
	EnvFile     string
	CDPURL      string
	Debug       bool
	ShowVersion bool

	Command string
	Args    []string
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("deepdiver v%s\n", version)
		return
	}
	if cli.Command == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("%s failed: %v", cli.Command, err)
		os.Exit(1)
	}
}

// parseFlags parses the global flags and splits off the command.
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigPath, "config", "", "Path to configuration file (default: ./deepdiver.yaml)")
	flag.StringVar(&cli.EnvFile, "env-file", "", "Path to .env file (default: ./.env)")
	flag.StringVar(&cli.CDPURL, "cdp-url", "", "Chrome DevTools endpoint, overrides env and config")
	flag.BoolVar(&cli.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "deepdiver - NotebookLM automation over Chrome DevTools\n\n")
		fmt.Fprintf(os.Stderr, "Usage: deepdiver [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  check                       Check Chrome connectivity and NotebookLM sign-in\n")
		fmt.Fprintf(os.Stderr, "  generate                    Generate Studio artifacts in a notebook\n")
		fmt.Fprintf(os.Stderr, "  jobs                        List recorded artifacts of a notebook\n")
		fmt.Fprintf(os.Stderr, "  notebook <subcommand>       create, open, url, share, upload, list, download\n")
		fmt.Fprintf(os.Stderr, "  podcast <subcommand>        create, download, list, info, delete, cleanup\n")
		fmt.Fprintf(os.Stderr, "  session <subcommand>        start, status, write, end, list, cleanup, events\n")
		fmt.Fprintf(os.Stderr, "  config <subcommand>         init, show\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DEEPDIVER_CDP_URL           Chrome DevTools endpoint\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  deepdiver check\n")
		fmt.Fprintf(os.Stderr, "  deepdiver session start -assistant claude\n")
		fmt.Fprintf(os.Stderr, "  deepdiver notebook create\n")
		fmt.Fprintf(os.Stderr, "  deepdiver notebook upload paper.pdf notes.md\n")
		fmt.Fprintf(os.Stderr, "  deepdiver podcast create -title \"Methods review\" -style debate paper.pdf\n")
		fmt.Fprintf(os.Stderr, "  deepdiver generate -kinds audio,quiz -set audio.format=debate -set quiz.difficulty=hard\n")
		fmt.Fprintf(os.Stderr, "  deepdiver -cdp-url http://127.0.0.1:9333 generate -kinds mindmap -source '*.pdf'\n")
	}

	flag.Parse()
	if args := flag.Args(); len(args) > 0 {
		cli.Command = args[0]
		cli.Args = args[1:]
	}
	return cli
}

// run dispatches the command.
func run(ctx context.Context, cli *CLIConfig) error {
	switch cli.Command {
	case "config":
		return runConfig(cli)
	case "check":
		return withApp(ctx, cli, runCheck)
	case "generate":
		return withApp(ctx, cli, runGenerate)
	case "jobs":
		return withApp(ctx, cli, runJobs)
	case "notebook":
		return withApp(ctx, cli, runNotebook)
	case "session":
		return withApp(ctx, cli, runSession)
	case "podcast":
		return withApp(ctx, cli, runPodcast)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cli.Command)
	}
}

// withApp builds the application, runs fn and releases everything fn used.
func withApp(ctx context.Context, cli *CLIConfig, fn func(context.Context, *app, []string) error) error {
	a, err := newApp(cli)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a, cli.Args)
	if closeErr := a.Close(); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}
