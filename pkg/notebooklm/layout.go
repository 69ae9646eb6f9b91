// Package notebooklm drives the NotebookLM web application: notebook and
// source management, generation protocols for every artifact kind, and the
// probe that follows generated artifacts in the Studio panel.
package notebooklm

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/locator"
)

//go:embed notebooklm.yaml
var builtinLayout []byte

// StudioLayout describes how artifact tiles are read. All selectors are
// evaluated against a tile's HTML snapshot.
type StudioLayout struct {
	// NewestFirst is set when new tiles are inserted at the top of the list.
	NewestFirst bool `yaml:"newest_first"`

	// Kinds maps a job kind to selectors identifying its tiles. Tiles
	// matching none of them are accepted for any kind.
	Kinds map[string][]string `yaml:"kinds"`

	Error        []string `yaml:"error"`
	ErrorPhrases []string `yaml:"error_phrases"`
	Generating   []string `yaml:"generating"`
	Ready        []string `yaml:"ready"`
}

// Layout is everything the package knows about the application's page
// structure.
type Layout struct {
	Version  string
	Catalog  *locator.Catalog
	Studio   StudioLayout
	Profiles map[string]extract.Profile
}

type layoutFile struct {
	Studio   *StudioLayout              `yaml:"studio"`
	Profiles map[string]extract.Profile `yaml:"profiles"`
}

// DefaultLayout returns the layout compiled into the binary.
func DefaultLayout() (*Layout, error) {
	return parseLayout(builtinLayout, nil)
}

// LoadLayout reads a layout override from path. The file must carry a
// complete locator catalog; its studio and profiles sections are optional
// and fall back to the built-in ones. An empty path returns DefaultLayout.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return DefaultLayout()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	base, err := DefaultLayout()
	if err != nil {
		return nil, err
	}
	return ParseLayout(data, base)
}

// ParseLayout decodes a layout document. Sections missing from data are
// taken from base when it is non-nil.
func ParseLayout(data []byte, base *Layout) (*Layout, error) {
	return parseLayout(data, base)
}

func parseLayout(data []byte, base *Layout) (*Layout, error) {
	catalog, err := locator.ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	var file layoutFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode layout: %w", err)
	}

	l := &Layout{Version: catalog.Version(), Catalog: catalog, Profiles: file.Profiles}
	switch {
	case file.Studio != nil:
		l.Studio = *file.Studio
	case base != nil:
		l.Studio = base.Studio
	default:
		return nil, fmt.Errorf("layout %s: studio section is required", l.Version)
	}
	if l.Profiles == nil && base != nil {
		l.Profiles = base.Profiles
	}

	if err := l.validate(); err != nil {
		return nil, fmt.Errorf("layout %s: %w", l.Version, err)
	}
	return l, nil
}

func (l *Layout) validate() error {
	if len(l.Studio.Ready) == 0 {
		return fmt.Errorf("studio.ready needs at least one selector")
	}
	for _, target := range requiredTargets {
		if _, err := l.Catalog.Strategy(target); err != nil {
			return err
		}
	}

	groups := map[string][]string{
		"studio.error":      l.Studio.Error,
		"studio.generating": l.Studio.Generating,
		"studio.ready":      l.Studio.Ready,
	}
	for kind, sels := range l.Studio.Kinds {
		groups["studio.kinds."+kind] = sels
	}
	for kind, p := range l.Profiles {
		prefix := "profiles." + kind
		groups[prefix+".title"] = p.Title
		groups[prefix+".duration"] = p.Duration
		groups[prefix+".thumbnail"] = p.Thumbnail
		groups[prefix+".item_count"] = p.ItemCount
		groups[prefix+".tags"] = p.Tags
	}
	for field, sels := range groups {
		for _, sel := range sels {
			if _, err := cascadia.Compile(sel); err != nil {
				return fmt.Errorf("%s: invalid selector %q: %w", field, sel, err)
			}
		}
	}
	return nil
}

// Extractor builds a metadata extractor from the layout's profiles. The
// "default" profile serves kinds without their own.
func (l *Layout) Extractor() *extract.Extractor {
	profiles := make(map[string]extract.Profile, len(l.Profiles))
	for k, v := range l.Profiles {
		if k != "default" {
			profiles[k] = v
		}
	}
	return extract.New(profiles, l.Profiles["default"])
}

// Targets used by this package's protocols and probes.
var requiredTargets = []string{
	targetHomeCreate, targetNotebookReady, targetNotebookTitle, targetAccountProfile, targetAccountSignIn,
	targetSourcesAdd, targetSourcesUpload, targetFileInput, targetSourcesWebsite,
	targetURLInput, targetSourcesInsert, targetSourceItem, targetSourceRows,
	targetSourceTitle, targetSourceCheckbox, targetStudioCreate, targetStudioCustomize,
	targetStudioArtifact, targetDialog, targetFormatOption,
	targetLanguageSelect, targetLanguageOption, targetLengthOption, targetCountOption,
	targetDifficultyOption, targetPrompt, targetGenerate, targetShareButton,
	targetShareDialog, targetShareEmail, targetShareRole, targetShareRoleOption,
	targetShareSend, targetArtifactMore, targetArtifactDownload,
}

const (
	targetHomeCreate       = "home.create"
	targetNotebookReady    = "notebook.ready"
	targetNotebookTitle    = "notebook.title"
	targetAccountProfile   = "account.profile"
	targetAccountSignIn    = "account.signin"
	targetSourcesAdd       = "sources.add"
	targetSourcesUpload    = "sources.upload"
	targetFileInput        = "sources.file_input"
	targetSourcesWebsite   = "sources.website"
	targetURLInput         = "sources.url_input"
	targetSourcesInsert    = "sources.insert"
	targetSourceItem       = "source.item"
	targetSourceRows       = "source.rows"
	targetSourceTitle      = "source.title"
	targetSourceCheckbox   = "source.checkbox"
	targetStudioCreate     = "studio.create"
	targetStudioCustomize  = "studio.customize"
	targetStudioArtifact   = "studio.artifact"
	targetDialog           = "dialog"
	targetFormatOption     = "format.option"
	targetLanguageSelect   = "language.select"
	targetLanguageOption   = "language.option"
	targetLengthOption     = "length.option"
	targetCountOption      = "count.option"
	targetDifficultyOption = "difficulty.option"
	targetPrompt           = "prompt"
	targetGenerate         = "generate"
	targetShareButton      = "share.button"
	targetShareDialog      = "share.dialog"
	targetShareEmail       = "share.email"
	targetShareRole        = "share.role"
	targetShareRoleOption  = "share.role_option"
	targetShareSend        = "share.send"
	targetArtifactMore     = "artifact.more"
	targetArtifactDownload = "artifact.download"
)
