package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/relay/pkg/config"
)

// Source describes where profile text comes from. A non-empty file path
// replaces the matching inline text.
type Source struct {
	Persona       string
	Knowledge     string
	Rule          string
	PersonaFile   string
	KnowledgeFile string
}

// SourceFromConfig builds a Source from profile configuration.
func SourceFromConfig(cfg config.ProfileConfig) Source {
	return Source{
		Persona:       cfg.Persona,
		Knowledge:     cfg.Knowledge,
		Rule:          cfg.Rule,
		PersonaFile:   cfg.PersonaFile,
		KnowledgeFile: cfg.KnowledgeFile,
	}
}

// Files returns the absolute paths of the backing files.
func (s Source) Files() []string {
	var files []string
	for _, f := range []string{s.PersonaFile, s.KnowledgeFile} {
		if f == "" {
			continue
		}
		if abs, err := filepath.Abs(f); err == nil {
			f = abs
		}
		files = append(files, filepath.Clean(f))
	}
	return files
}

// Read resolves the source into profile text.
func (s Source) Read() (persona, knowledge, rule string, err error) {
	persona, err = readOr(s.PersonaFile, s.Persona)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read persona: %w", err)
	}
	knowledge, err = readOr(s.KnowledgeFile, s.Knowledge)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read knowledge base: %w", err)
	}
	return persona, knowledge, s.Rule, nil
}

func readOr(path, inline string) (string, error) {
	if path == "" {
		return inline, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithReloadObserver registers fn to be called after every reload attempt
// with its result. On success the new snapshot is already installed.
func WithReloadObserver(fn func(err error)) LoaderOption {
	return func(l *Loader) {
		l.observe = fn
	}
}

// Loader fills a Store from a Source.
type Loader struct {
	source  Source
	store   *Store
	logger  *slog.Logger
	observe func(err error)
}

// NewLoader reads the source once and creates the store. It fails when a
// configured file cannot be read.
func NewLoader(source Source, logger *slog.Logger, opts ...LoaderOption) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	persona, knowledge, rule, err := source.Read()
	if err != nil {
		return nil, err
	}

	l := &Loader{
		source: source,
		store:  NewStore(persona, knowledge, rule),
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Store returns the store the loader publishes to.
func (l *Loader) Store() *Store {
	return l.store
}

// Source returns the loader's source.
func (l *Loader) Source() Source {
	return l.source
}

// Reload re-reads the source and swaps the store. On error the previous
// snapshot stays in place.
func (l *Loader) Reload() error {
	persona, knowledge, rule, err := l.source.Read()
	if err != nil {
		l.logger.Error("profile reload failed, keeping previous profile",
			"version", l.store.Load().Version,
			"error", err,
		)
		l.notify(err)
		return err
	}

	snap := l.store.Swap(persona, knowledge, rule)
	l.notify(nil)
	l.logger.Info("profile reloaded",
		"version", snap.Version,
		"persona_chars", len([]rune(snap.Persona)),
		"knowledge_chars", len([]rune(snap.Knowledge)),
	)
	return nil
}

func (l *Loader) notify(err error) {
	if l.observe != nil {
		l.observe(err)
	}
}
