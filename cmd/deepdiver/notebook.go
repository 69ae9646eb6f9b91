package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/notebooklm"
	"github.com/entrhq/deepdiver/pkg/store"
)

func runNotebook(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("notebook requires a subcommand: create, open, url, share, upload, list, download")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		return notebookCreate(ctx, a, rest)
	case "open":
		return notebookOpen(ctx, a, rest)
	case "url":
		return notebookURL(a, rest)
	case "share":
		return notebookShare(ctx, a, rest)
	case "upload":
		return notebookUpload(ctx, a, rest)
	case "list":
		return notebookList(a, rest)
	case "download":
		return notebookDownload(ctx, a, rest)
	default:
		return fmt.Errorf("unknown notebook subcommand %q", sub)
	}
}

func notebookCreate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("notebook create", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	d, err := a.driver()
	if err != nil {
		return err
	}
	nb, err := d.CreateNotebook(ctx)
	if err != nil {
		return err
	}
	if err := a.ensureSession(); err != nil {
		return err
	}
	if err := a.tracker.AddNotebook(store.Notebook{ID: nb.ID, URL: nb.URL, Title: nb.Title, Active: true}); err != nil {
		return err
	}
	return printNotebook(nb, *format)
}

func notebookOpen(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("notebook open", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: deepdiver notebook open <notebook-id>")
	}

	d, err := a.driver()
	if err != nil {
		return err
	}
	nb, err := d.OpenNotebook(ctx, notebooklmID(fs.Arg(0)))
	if err != nil {
		return err
	}
	if err := a.ensureSession(); err != nil {
		return err
	}
	err = a.tracker.SetActiveNotebook(nb.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = a.tracker.AddNotebook(store.Notebook{ID: nb.ID, URL: nb.URL, Title: nb.Title, Active: true})
	case err == nil:
		err = a.tracker.UpdateNotebook(nb.ID, nb.Title, nb.URL)
	}
	if err != nil {
		return err
	}
	return printNotebook(nb, *format)
}

// notebooklmID accepts either a notebook ID or a notebook URL.
func notebooklmID(arg string) string {
	if id := notebooklm.NotebookIDFromURL(arg); id != "" {
		return id
	}
	return strings.TrimSpace(arg)
}

func notebookURL(a *app, args []string) error {
	fs := flag.NewFlagSet("notebook url", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	copyURL := fs.Bool("copy", false, "Copy the URL to the clipboard")
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	id, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}
	d, err := a.driver()
	if err != nil {
		return err
	}
	url := d.NotebookURL(id)

	if *copyURL {
		if err := clipboard.WriteAll(url); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
	}
	if *format == formatJSON {
		return printJSON(map[string]string{"notebook_id": id, "url": url})
	}
	fmt.Println(url)
	if *copyURL {
		printInfo("copied to clipboard")
	}
	return nil
}

func notebookShare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("notebook share", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	email := fs.String("email", "", "Email address to share with")
	role := fs.String("role", notebooklm.RoleViewer, "Access role: viewer or editor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}
	d, err := a.driver()
	if err != nil {
		return err
	}
	if err := d.Share(ctx, id, *email, *role); err != nil {
		return err
	}
	printSuccess("shared %s with %s as %s", id, *email, *role)
	return nil
}

// notebookUpload validates and prepares each file, then uploads it. URL
// sources are added after the files.
func notebookUpload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("notebook upload", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	var urls multiFlag
	fs.Var(&urls, "url", "Website source to add (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 && len(urls) == 0 {
		return fmt.Errorf("usage: deepdiver notebook upload [-notebook id] [-url u] <file>...")
	}

	id, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}
	proc, err := a.processor()
	if err != nil {
		return err
	}

	// Validate everything before touching the browser.
	var invalid []error
	for _, path := range fs.Args() {
		if err := proc.Validate(path).Err(); err != nil {
			invalid = append(invalid, err)
		}
	}
	if len(invalid) > 0 {
		return errors.Join(invalid...)
	}

	d, err := a.driver()
	if err != nil {
		return err
	}
	if err := a.ensureSession(); err != nil {
		return err
	}
	defer func() {
		if n, err := proc.Cleanup(); err != nil {
			a.logger.Warnf("temp cleanup: %v", err)
		} else if n > 0 {
			a.logger.Debugf("removed %d prepared file(s)", n)
		}
	}()

	for _, path := range fs.Args() {
		prepared, err := proc.Prepare(path)
		if err != nil {
			return err
		}
		if err := d.UploadSource(ctx, id, prepared.Path); err != nil {
			return fmt.Errorf("failed to upload %s: %w", path, err)
		}
		v := prepared.Validation
		if err := a.tracker.AddDocument(store.Document{
			Path:     path,
			Format:   v.Format,
			Size:     v.Size,
			Pages:    v.Pages,
			Notebook: id,
		}); err != nil {
			return err
		}
		printSuccess("uploaded %s (%s)", path, strings.Join(prepared.Steps, ", "))
	}

	for _, u := range urls {
		if err := d.AddSourceURL(ctx, id, u); err != nil {
			return fmt.Errorf("failed to add %s: %w", u, err)
		}
		printSuccess("added %s", u)
	}
	return nil
}

func notebookList(a *app, args []string) error {
	fs := flag.NewFlagSet("notebook list", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	notebooks, err := a.tracker.Notebooks()
	if err != nil {
		return err
	}
	if *format == formatJSON {
		return printJSON(notebooks)
	}
	if len(notebooks) == 0 {
		printInfo("no notebooks in this session")
		return nil
	}
	for _, nb := range notebooks {
		marker := " "
		if nb.Active {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n", marker, nb.ID, nb.Title,
			mutedStyle.Render(fmt.Sprintf("%d source(s), %d artifact(s)", len(nb.Sources), len(nb.Artifacts))))
	}
	return nil
}

func notebookDownload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("notebook download", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	artifact := fs.String("artifact", "", "Artifact ID of the audio overview")
	dir := fs.String("dir", a.cfg.Browser.DownloadDir, "Directory to save into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}
	d, err := a.driver()
	if err != nil {
		return err
	}
	path, err := d.DownloadAudio(ctx, id, *artifact, *dir)
	if err != nil {
		return err
	}
	printSuccess("saved %s", path)
	return nil
}

func printNotebook(nb notebooklm.Notebook, format string) error {
	if format == formatJSON {
		return printJSON(map[string]string{"notebook_id": nb.ID, "url": nb.URL, "title": nb.Title})
	}
	printSuccess("notebook %s", nb.ID)
	printField("title", nb.Title)
	printField("url", nb.URL)
	return nil
}

// runJobs lists the artifacts recorded for a notebook, from the SQLite index
// when configured and from the session otherwise.
func runJobs(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	id, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}

	var records []store.ArtifactRecord
	if a.sqlite != nil {
		records, err = a.sqlite.Artifacts(ctx, id)
		if err != nil {
			return err
		}
	} else {
		notebooks, err := a.tracker.Notebooks()
		if err != nil {
			return err
		}
		for _, nb := range notebooks {
			if nb.ID == id {
				records = nb.Artifacts
			}
		}
	}

	if *format == formatJSON {
		return printJSON(records)
	}
	if len(records) == 0 {
		printInfo("no artifacts recorded for notebook %s", id)
		return nil
	}
	printHeader(fmt.Sprintf("Artifacts in %s", id))
	for _, r := range records {
		detail := r.MediaDuration
		if r.ItemCount != "" && r.ItemCount != extract.Unknown {
			detail = r.ItemCount + " items"
		}
		fmt.Printf("%-10s %-20s %s  %s\n", r.Kind, r.ArtifactID, r.Title,
			mutedStyle.Render(fmt.Sprintf("%s, generated in %s", detail, r.Duration.Round(time.Second))))
	}
	return nil
}
