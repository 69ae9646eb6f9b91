package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/entrhq/deepdiver/pkg/content"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/notebooklm"
	"github.com/entrhq/deepdiver/pkg/podcast"
	"github.com/entrhq/deepdiver/pkg/store"
)

func runPodcast(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("podcast requires a subcommand: create, download, list, info, delete, cleanup")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		return podcastCreate(ctx, a, rest)
	case "download":
		return podcastDownload(ctx, a, rest)
	case "list":
		return podcastList(a, rest)
	case "info":
		return podcastInfo(a, rest)
	case "delete":
		return podcastDelete(a, rest)
	case "cleanup":
		return podcastCleanup(a, rest)
	default:
		return fmt.Errorf("unknown podcast subcommand %q", sub)
	}
}

// audioParams builds the audio settings from the configured defaults and
// the non-empty flags.
func audioParams(a *app, format, length, language, instructions string) (jobs.AudioParams, error) {
	override := map[string]string{}
	for key, v := range map[string]string{"format": format, "length": length, "language": language, "instructions": instructions} {
		if v != "" {
			override[key] = v
		}
	}
	params, err := a.cfg.JobParams(jobs.KindAudio, override)
	if err != nil {
		return jobs.AudioParams{}, err
	}
	audio, ok := params.(jobs.AudioParams)
	if !ok {
		return jobs.AudioParams{}, fmt.Errorf("unexpected audio parameters %T", params)
	}
	return audio, nil
}

// podcastCreate uploads the given sources, generates an audio overview and
// saves it into the podcast library. Without a notebook it uses the
// session's active notebook, creating one when there is none.
func podcastCreate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("podcast create", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the active notebook, or a new one)")
	title := fs.String("title", "", "Podcast title (default: the title NotebookLM gives it)")
	style := fs.String("style", "", "Audio format: deep_dive, brief, critique, debate")
	length := fs.String("length", "", "Audio length: short, default, long")
	language := fs.String("language", "", "Output language")
	instructions := fs.String("instructions", "", "What the hosts should focus on")
	format := fs.String("format", formatText, "Output format: text or json")
	var urls multiFlag
	fs.Var(&urls, "url", "Website source to add (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	params, err := audioParams(a, *style, *length, *language, *instructions)
	if err != nil {
		return err
	}

	proc, err := a.processor()
	if err != nil {
		return err
	}
	var invalid []error
	for _, path := range fs.Args() {
		if err := proc.Validate(path).Err(); err != nil {
			invalid = append(invalid, err)
		}
	}
	if len(invalid) > 0 {
		return errors.Join(invalid...)
	}
	lib, err := a.library()
	if err != nil {
		return err
	}

	d, err := a.driver()
	if err != nil {
		return err
	}
	state, err := d.CheckAuthentication(ctx)
	if err != nil {
		return err
	}
	if state == notebooklm.SignedOut {
		return fmt.Errorf("sign in to NotebookLM in the attached Chrome first")
	}
	if err := a.ensureSession(); err != nil {
		return err
	}
	nbID, err := a.podcastNotebook(ctx, d, *notebook)
	if err != nil {
		return err
	}
	defer func() {
		if _, err := proc.Cleanup(); err != nil {
			a.logger.Warnf("temp cleanup: %v", err)
		}
	}()

	prepared := make(map[string]*content.Prepared)
	pipeline := podcast.NewPipeline(d, a.engine(d), lib,
		podcast.WithPipelineLogger(a.logger.With("podcast")),
		podcast.WithTempDir(a.cfg.Content.TempDir),
		podcast.WithPreparer(func(path string) (string, error) {
			p, err := proc.Prepare(path)
			if err != nil {
				return "", err
			}
			prepared[path] = p
			return p.Path, nil
		}),
		podcast.WithUploadHook(func(path string) error {
			v := prepared[path].Validation
			printSuccess("uploaded %s", path)
			return a.tracker.AddDocument(store.Document{Path: path, Format: v.Format, Size: v.Size, Pages: v.Pages, Notebook: nbID})
		}),
	)

	printInfo("Generating audio overview in %s...", nbID)
	res, err := pipeline.Create(ctx, podcast.Request{
		NotebookID: nbID,
		Files:      fs.Args(),
		URLs:       urls,
		Title:      *title,
		Params:     params,
	})
	if err != nil {
		if res != nil && res.Outcome.Tag != "" {
			printError("audio overview %s after %s", res.Outcome.State, res.Outcome.Elapsed.Round(time.Second))
		}
		return err
	}
	return printPodcast(*res.Podcast, *format)
}

// podcastNotebook picks the notebook a new podcast goes into.
func (a *app) podcastNotebook(ctx context.Context, d *notebooklm.Driver, explicit string) (string, error) {
	if explicit != "" {
		return notebooklmID(explicit), nil
	}
	if nb, err := a.tracker.ActiveNotebook(); err == nil {
		return nb.ID, nil
	}
	nb, err := d.CreateNotebook(ctx)
	if err != nil {
		return "", err
	}
	if err := a.tracker.AddNotebook(store.Notebook{ID: nb.ID, URL: nb.URL, Title: nb.Title, Active: true}); err != nil {
		return "", err
	}
	printSuccess("created notebook %s", nb.ID)
	return nb.ID, nil
}

// podcastDownload saves an existing audio artifact into the library. The
// title defaults to the one recorded for the artifact.
func podcastDownload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("podcast download", flag.ContinueOnError)
	notebook := fs.String("notebook", "", "Notebook ID (default: the session's active notebook)")
	artifact := fs.String("artifact", "", "Artifact ID of the audio overview")
	title := fs.String("title", "", "Podcast title")
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	if *artifact == "" {
		return fmt.Errorf("usage: deepdiver podcast download -artifact <id> [-notebook id] [-title t]")
	}
	nbID, err := a.notebookID(*notebook)
	if err != nil {
		return err
	}
	lib, err := a.library()
	if err != nil {
		return err
	}
	d, err := a.driver()
	if err != nil {
		return err
	}

	md := podcast.Metadata{Title: *title, ArtifactID: *artifact}
	if rec, ok := a.recordedArtifact(ctx, nbID, *artifact); ok {
		if md.Title == "" {
			md.Title = rec.Title
		}
		md.Duration = rec.MediaDuration
		md.Settings = rec.Config
	}
	pipeline := podcast.NewPipeline(d, a.engine(d), lib,
		podcast.WithPipelineLogger(a.logger.With("podcast")),
		podcast.WithTempDir(a.cfg.Content.TempDir),
	)
	p, err := pipeline.Download(ctx, nbID, md)
	if err != nil {
		return err
	}
	return printPodcast(*p, *format)
}

// recordedArtifact looks up an artifact in the SQLite index or the session.
func (a *app) recordedArtifact(ctx context.Context, notebookID, artifactID string) (store.ArtifactRecord, bool) {
	var records []store.ArtifactRecord
	if a.sqlite != nil {
		recs, err := a.sqlite.Artifacts(ctx, notebookID)
		if err != nil {
			a.logger.Warnf("artifact lookup: %v", err)
		}
		records = recs
	} else if notebooks, err := a.tracker.Notebooks(); err == nil {
		for _, nb := range notebooks {
			if nb.ID == notebookID {
				records = nb.Artifacts
			}
		}
	}
	for _, r := range records {
		if r.ArtifactID == artifactID && r.Title != "" {
			return r, true
		}
	}
	return store.ArtifactRecord{}, false
}

func podcastList(a *app, args []string) error {
	fs := flag.NewFlagSet("podcast list", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	lib, err := a.library()
	if err != nil {
		return err
	}
	podcasts, err := lib.List()
	if err != nil {
		return err
	}
	if *format == formatJSON {
		return printJSON(podcasts)
	}
	if len(podcasts) == 0 {
		printInfo("no podcasts in %s", lib.Dir())
		return nil
	}
	for _, p := range podcasts {
		detail := content.FormatSize(p.Size)
		if p.Metadata != nil && p.Metadata.Duration != "" {
			detail = p.Metadata.Duration + ", " + detail
		}
		fmt.Printf("%s  %s  %s\n", p.Modified.Format("2006-01-02 15:04"), p.Filename, mutedStyle.Render(detail))
	}
	return nil
}

func podcastInfo(a *app, args []string) error {
	fs := flag.NewFlagSet("podcast info", flag.ContinueOnError)
	format := fs.String("format", formatText, "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: deepdiver podcast info <file>")
	}
	lib, err := a.library()
	if err != nil {
		return err
	}
	p, err := lib.Info(fs.Arg(0))
	if err != nil {
		return err
	}
	return printPodcast(*p, *format)
}

func podcastDelete(a *app, args []string) error {
	fs := flag.NewFlagSet("podcast delete", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: deepdiver podcast delete <file>...")
	}
	lib, err := a.library()
	if err != nil {
		return err
	}
	for _, name := range fs.Args() {
		if err := lib.Delete(name); err != nil {
			return err
		}
		printSuccess("deleted %s", name)
	}
	return nil
}

func podcastCleanup(a *app, args []string) error {
	fs := flag.NewFlagSet("podcast cleanup", flag.ContinueOnError)
	maxAge := fs.Duration("max-age", a.cfg.Podcasts.MaxAge, "Remove podcasts older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lib, err := a.library()
	if err != nil {
		return err
	}
	n, err := lib.Cleanup(*maxAge)
	if err != nil {
		return err
	}
	printSuccess("removed %d podcast(s)", n)
	return nil
}

func printPodcast(p podcast.Podcast, format string) error {
	if format == formatJSON {
		return printJSON(p)
	}
	printSuccess("%s", p.Path)
	printField("size", content.FormatSize(p.Size))
	printField("saved", p.Modified.Format(time.RFC3339))
	md := p.Metadata
	if md == nil {
		printField("metadata", "none")
		return nil
	}
	printField("title", md.Title)
	printField("notebook", orNone(md.NotebookID))
	printField("artifact", orNone(md.ArtifactID))
	if md.Duration != "" {
		printField("duration", md.Duration)
	}
	if !md.QualityCheck.FormatValid {
		printWarn("file does not start like an audio file")
	}
	return nil
}
