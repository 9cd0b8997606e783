// Package mirror runs top-level mirroring jobs: it assembles a fresh engine
// for every request, mirrors the root document into an archive and records
// the outcome.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/sites"
	"github.com/jonesrussell/north-cloud/mirror/internal/database"
	"github.com/jonesrussell/north-cloud/mirror/internal/degrade"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
	"github.com/jonesrussell/north-cloud/mirror/internal/metrics"
	"github.com/jonesrussell/north-cloud/mirror/internal/rewriter"
	"github.com/jonesrussell/north-cloud/mirror/internal/triage"
)

var (
	// ErrInvalidURL is returned for requests without an absolute http(s) URL.
	ErrInvalidURL = errors.New("mirror: url must be absolute http or https")
	// ErrMissingDependency is returned by NewService when a collaborator is nil.
	ErrMissingDependency = errors.New("mirror: missing dependency")
)

// Request asks for one page to be mirrored. Nil options use the configured
// defaults.
type Request struct {
	URL         string `json:"url"`
	Locale      string `json:"locale,omitempty"`
	FollowLinks *bool  `json:"follow_links,omitempty"`
	LoadScripts *bool  `json:"load_scripts,omitempty"`
}

// Report describes a finished run.
type Report struct {
	RunID   string `json:"run_id"`
	RootURL string `json:"root_url"`
	Status  string `json:"status"`
	// Location is where the archive was written: a file, a directory, or a
	// bucket prefix.
	Location   string         `json:"location"`
	Ref        string         `json:"ref,omitempty"`
	Entries    int            `json:"entries"`
	Documents  int            `json:"documents"`
	Nodes      int            `json:"nodes"`
	TriageHits int            `json:"triage_hits"`
	Failures   map[string]int `json:"failures"`
	Duration   time.Duration  `json:"duration"`
	Error      string         `json:"error,omitempty"`
}

// RunStore persists run history.
type RunStore interface {
	Create(ctx context.Context, run *database.Run) error
	Finish(ctx context.Context, run *database.Run) error
}

// Deps are the collaborators of a Service. Store and Metrics are optional.
type Deps struct {
	Reader  fetch.Reader
	Writers WriterFactory
	Sites   *sites.Rules
	Store   RunStore
	Metrics *metrics.Metrics
	Logger  logger.Logger
}

// Service runs mirroring requests. It is safe for concurrent use; every run
// gets its own triage cache, registry and archive writer.
type Service struct {
	cfg     *config.MirrorConfig
	locales degrade.Locales
	deps    Deps
	log     logger.Logger
}

// NewService creates a Service.
func NewService(cfg *config.MirrorConfig, deps Deps) (*Service, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("%w: mirror config", ErrMissingDependency)
	case deps.Reader == nil:
		return nil, fmt.Errorf("%w: reader", ErrMissingDependency)
	case deps.Writers == nil:
		return nil, fmt.Errorf("%w: writer factory", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	return &Service{
		cfg:     cfg,
		locales: degrade.DefaultLocales().Merge(cfg.Locales),
		deps:    deps,
		log:     deps.Logger,
	}, nil
}

// Run mirrors req.URL into a new archive. The returned report is populated
// even when the run fails.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	start := time.Now()
	log := s.log.With(logger.String("run_id", runID), logger.String("url", req.URL))

	report := &Report{
		RunID:    runID,
		RootURL:  req.URL,
		Status:   database.RunStatusRunning,
		Failures: make(map[string]int),
	}
	s.recordStart(ctx, log, report, start)

	log.Info("Mirror run started")
	runErr := s.run(ctx, log, req, report)

	report.Duration = time.Since(start)
	report.Status = database.RunStatusSucceeded
	if runErr != nil {
		report.Status = database.RunStatusFailed
		report.Error = runErr.Error()
		log.Error("Mirror run failed", logger.Error(runErr))
	} else {
		log.Info("Mirror run finished",
			logger.String("location", report.Location),
			logger.Int("entries", report.Entries),
			logger.Duration("duration", report.Duration))
	}

	if s.deps.Metrics != nil {
		status := metrics.StatusSucceeded
		if runErr != nil {
			status = metrics.StatusFailed
		}
		s.deps.Metrics.RecordRun(status, report.Duration)
	}
	s.recordFinish(ctx, log, report)

	return report, runErr
}

func (s *Service) run(ctx context.Context, log logger.Logger, req Request, report *Report) (err error) {
	writer, location, err := s.deps.Writers(ctx, report.RunID)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	report.Location = location
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", closeErr)
		}
		report.Entries = len(writer.Entries())
	}()

	registry, err := handler.NewRegistry(handler.Defaults(handler.DefaultsOptions{
		SlideshowHosts: s.cfg.Slideshow.Hosts,
		SlideSelector:  s.cfg.Slideshow.ImageSelector,
		SlideSource:    s.cfg.Slideshow.Source,
		PageHosts:      s.pageHosts(req.URL),
	})...)
	if err != nil {
		return fmt.Errorf("build handler registry: %w", err)
	}

	locale := s.cfg.Locale
	if req.Locale != "" {
		locale = req.Locale
	}
	reader := s.deps.Reader
	gen := degrade.NewGenerator(degrade.Options{
		Locale:  locale,
		Color:   s.cfg.Color,
		Locales: s.locales,
		Probe: func(ctx context.Context, url string) error {
			return fetch.Probe(ctx, reader, url)
		},
		Logger: log,
	})

	cache := triage.New()
	var unrecognized unrecognizedCounter
	rw, err := rewriter.New(s.options(req), rewriter.Deps{
		Reader:    reader,
		Writer:    writer,
		Triage:    cache,
		Registry:  registry,
		Fallbacks: gen,
		Logger:    log,
		Observe: func(name string, outcome handler.Outcome, failure handler.FailureKind) {
			if failure == handler.Unrecognized {
				unrecognized.inc()
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveDispatch(name, outcome, failure)
			}
		},
		OnFallback:  s.observeFallback,
		OnTriageHit: s.observeTriageHit,
	})
	if err != nil {
		return fmt.Errorf("build rewriter: %w", err)
	}

	ref, mirrorErr := rw.MirrorRoot(ctx, req.URL)

	stats := rw.Stats()
	report.Ref = ref
	report.Documents = stats.Documents
	report.Nodes = stats.Nodes
	report.TriageHits = cache.Stats().Hits
	for kind, n := range stats.Fallbacks {
		report.Failures[kind.String()] += n
	}
	if n := unrecognized.value(); n > 0 {
		report.Failures[handler.Unrecognized.String()] = n
	}

	if mirrorErr != nil {
		return fmt.Errorf("mirror %s: %w", req.URL, mirrorErr)
	}
	return nil
}

func (s *Service) options(req Request) rewriter.Options {
	opts := rewriter.Options{
		Omit:            s.cfg.Omit,
		MainArea:        s.cfg.MainArea,
		Readability:     s.cfg.Readability,
		FollowLinks:     s.cfg.FollowsLinks(),
		LoadScripts:     s.cfg.LoadScripts,
		PartialNotice:   s.cfg.PartialNotice,
		LeafConcurrency: s.cfg.LeafConcurrency,
		Sites:           s.deps.Sites,
	}
	if req.FollowLinks != nil {
		opts.FollowLinks = *req.FollowLinks
	}
	if req.LoadScripts != nil {
		opts.LoadScripts = *req.LoadScripts
	}
	return opts
}

func (s *Service) observeFallback(kind handler.FailureKind) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveFallback(kind)
	}
}

func (s *Service) observeTriageHit() {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveTriageHit()
	}
}

// Run history is best effort: a store outage never fails a mirror.
func (s *Service) recordStart(ctx context.Context, log logger.Logger, report *Report, start time.Time) {
	if s.deps.Store == nil {
		return
	}
	err := s.deps.Store.Create(ctx, &database.Run{
		ID:        report.RunID,
		RootURL:   report.RootURL,
		Status:    database.RunStatusRunning,
		StartedAt: start,
	})
	if err != nil {
		log.Warn("Failed to record run start", logger.Error(err))
	}
}

func (s *Service) recordFinish(ctx context.Context, log logger.Logger, report *Report) {
	if s.deps.Store == nil {
		return
	}
	finished := time.Now()
	run := &database.Run{
		ID:           report.RunID,
		ArchiveRef:   report.Location,
		Status:       report.Status,
		Entries:      report.Entries,
		Broken:       report.Failures[handler.Broken.String()],
		Unscrapable:  report.Failures[handler.Unscrapable.String()],
		Unrecognized: report.Failures[handler.Unrecognized.String()],
		FinishedAt:   &finished,
	}
	if report.Error != "" {
		run.Error.String, run.Error.Valid = report.Error, true
	}
	//nolint:contextcheck // record the outcome even when the run was cancelled
	if err := s.deps.Store.Finish(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to record run result", logger.Error(err))
	}
}

// pageHosts scopes sub-document mirroring to the root's site and the hosts
// that have site rules. A leading "www." is dropped so both forms match.
func (s *Service) pageHosts(rootURL string) []string {
	hosts := []string{strings.TrimPrefix(handler.Host(rootURL), "www.")}
	return append(hosts, s.deps.Sites.Hosts()...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

type unrecognizedCounter struct {
	mu sync.Mutex
	n  int
}

func (c *unrecognizedCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *unrecognizedCounter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
