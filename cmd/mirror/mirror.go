// Package mirror implements the command that mirrors one page into an archive.
package mirror

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/mirror/cmd/common"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/mirror"
)

// Command returns the mirror command.
func Command(deps *common.CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror <url>",
		Short: "Mirror a page and its resources into an archive",
		Long: `Fetches the page at <url>, archives its images, stylesheets, scripts,
media and linked sub-pages, and rewrites every reference to the local copy.
Resources that cannot be archived are replaced with an explanatory fallback.`,
		Example: `  mirror mirror https://example.org/article --output article.zip
  mirror mirror https://example.org/ --backend dir --output site --follow-links=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, *deps, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "archive file, directory or object prefix")
	flags.String("backend", "", "archive backend (zip, dir, minio)")
	flags.String("locale", "", "language of fallback messages")
	flags.Bool("follow-links", true, "mirror linked sub-pages")
	flags.Bool("load-scripts", false, "render pages in a browser before reading them")

	common.MustBindFlag("archive.path", flags.Lookup("output"))
	common.MustBindFlag("archive.backend", flags.Lookup("backend"))
	common.MustBindFlag("mirror.locale", flags.Lookup("locale"))
	common.MustBindFlag("mirror.follow_links", flags.Lookup("follow-links"))
	common.MustBindFlag("mirror.load_scripts", flags.Lookup("load-scripts"))

	return cmd
}

func run(cmd *cobra.Command, deps common.CommandDeps, rawURL string) error {
	rt, err := common.NewRuntime(cmd.Context(), deps, common.RuntimeOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			deps.Logger.Warn("Failed to close backends", logger.Error(closeErr))
		}
	}()

	report, runErr := rt.Service.Run(cmd.Context(), mirror.Request{URL: rawURL})
	if report != nil {
		RenderReport(report)
	}
	if runErr != nil {
		return fmt.Errorf("mirror failed: %w", runErr)
	}
	return nil
}

// RenderReport prints a run report as a two-column table.
func RenderReport(report *mirror.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Mirror " + report.RootURL)

	t.AppendRow(table.Row{"Run", report.RunID})
	t.AppendRow(table.Row{"Status", report.Status})
	t.AppendRow(table.Row{"Archive", report.Location})
	if report.Ref != "" {
		t.AppendRow(table.Row{"Entry point", report.Ref})
	}
	t.AppendRow(table.Row{"Entries", strconv.Itoa(report.Entries)})
	t.AppendRow(table.Row{"Documents", strconv.Itoa(report.Documents)})
	t.AppendRow(table.Row{"Nodes", strconv.Itoa(report.Nodes)})
	t.AppendRow(table.Row{"Cache hits", strconv.Itoa(report.TriageHits)})

	kinds := make([]string, 0, len(report.Failures))
	for kind := range report.Failures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		t.AppendRow(table.Row{"Fallbacks (" + kind + ")", strconv.Itoa(report.Failures[kind])})
	}

	t.AppendRow(table.Row{"Duration", report.Duration.Round(time.Millisecond).String()})
	if report.Error != "" {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Error", report.Error})
	}
	t.Render()
}
