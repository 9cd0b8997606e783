package rewriter

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

type leafJob struct {
	url string
	dir string
	ext string
}

// prefetch writes the pure leaves of a document in parallel so the walk finds
// them settled in the triage cache. Failures are recorded there and rendered
// by the walk.
func (r *Rewriter) prefetch(ctx context.Context, p *pageState, nodes []*goquery.Selection) error {
	jobs := leafJobs(p.url, nodes)
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.LeafConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, _ = r.leaf(gctx, job.url, job.dir, job.ext)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.log.Debug("Prefetched leaves",
		logger.String("url", p.url),
		logger.Int("count", len(jobs)))
	return ctx.Err()
}

func leafJobs(pageURL string, nodes []*goquery.Selection) []leafJob {
	seen := make(map[string]struct{})
	var jobs []leafJob
	add := func(raw, dir, ext string) {
		if urlresolve.IsSkippable(raw) || urlresolve.IsData(raw) {
			return
		}
		abs := urlresolve.StripFragment(urlresolve.Resolve(pageURL, raw))
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		jobs = append(jobs, leafJob{url: abs, dir: dir, ext: ext})
	}

	for _, s := range nodes {
		switch goquery.NodeName(s) {
		case "img":
			add(s.AttrOr("src", ""), archive.DirImages, ".png")
		case "script":
			if src := s.AttrOr("src", ""); !strings.Contains(src, "google") {
				add(src, archive.DirJS, ".js")
			}
		}
	}
	return jobs
}
