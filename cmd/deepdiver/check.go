package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/entrhq/deepdiver/pkg/browser"
	"github.com/entrhq/deepdiver/pkg/notebooklm"
)

// runCheck probes every endpoint candidate, then attaches to the browser and
// checks that NotebookLM is signed in.
func runCheck(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	skipAuth := fs.Bool("skip-auth", false, "Only check Chrome connectivity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	printHeader("Chrome DevTools endpoints")
	reachable := 0
	for _, ep := range a.cfg.Endpoints {
		info, err := browser.Probe(ctx, ep.URL, a.cfg.Browser.ConnectTimeout)
		if err != nil {
			printError("%-8s %s: %v", ep.Source, ep.URL, err)
			continue
		}
		reachable++
		printSuccess("%-8s %s (%s)", ep.Source, ep.URL, info.Browser)
	}
	if reachable == 0 {
		printInfo("Start Chrome with --remote-debugging-port=9222 or set %s", browser.EnvCDPURL)
		return fmt.Errorf("no reachable Chrome endpoint")
	}
	if *skipAuth {
		return nil
	}

	d, err := a.driver()
	if err != nil {
		return err
	}
	state, err := d.CheckAuthentication(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	printHeader("NotebookLM")
	if ep, ok := a.manager.Endpoint(); ok {
		printField("endpoint", ep.String())
	}
	switch state {
	case notebooklm.Authenticated:
		printSuccess("signed in")
	case notebooklm.SignedOut:
		printError("signed out")
		return fmt.Errorf("sign in to NotebookLM in the attached Chrome first")
	default:
		printWarn("sign-in state unknown, continuing as signed in")
	}
	return nil
}
