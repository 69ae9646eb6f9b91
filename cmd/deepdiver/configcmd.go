package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/deepdiver/pkg/config"
)

// runConfig handles "config init" and "config show". Neither needs the
// browser or the session store.
func runConfig(cli *CLIConfig) error {
	if len(cli.Args) == 0 {
		return fmt.Errorf("config requires a subcommand: init, show")
	}
	sub, rest := cli.Args[0], cli.Args[1:]
	switch sub {
	case "init":
		return configInit(rest)
	case "show":
		return configShow(cli, rest)
	default:
		return fmt.Errorf("unknown config subcommand %q", sub)
	}
}

func configInit(args []string) error {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	path := fs.String("path", config.ProjectFile, "Where to write the configuration")
	user := fs.Bool("user", false, "Write the user configuration instead of the project file")
	force := fs.Bool("force", false, "Overwrite an existing file")
	cdpURL := fs.String("cdp-url", "", "Chrome DevTools endpoint to store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *path
	if *user {
		p, err := config.UserConfigPath()
		if err != nil {
			return err
		}
		target = p
	}
	if _, err := os.Stat(target); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", target)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", target, err)
	}

	cfg := config.DefaultConfig()
	cfg.Browser.CDPURL = *cdpURL
	if err := config.Save(cfg, target); err != nil {
		return err
	}
	printSuccess("wrote %s", target)
	return nil
}

// configShow prints the effective configuration and where it came from.
func configShow(cli *CLIConfig, args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	res, err := config.Resolve(config.Options{
		Path:        cli.ConfigPath,
		EnvFile:     cli.EnvFile,
		CDPOverride: cli.CDPURL,
	})
	if err != nil {
		return err
	}
	if *format == formatJSON {
		return printJSON(res)
	}

	printHeader("Configuration")
	if len(res.Files) == 0 {
		printField("files", "defaults only")
	}
	for _, f := range res.Files {
		printField("file", f)
	}
	for _, ep := range res.Endpoints {
		printField("endpoint", ep.String())
	}
	fmt.Println()
	data, err := yaml.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
