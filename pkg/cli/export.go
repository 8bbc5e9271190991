package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/caselog/pkg/adapter"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/caselog/pkg/usecase/export"
	"github.com/m-mizutani/caselog/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var cfg config
	var output string
	var workers int64

	flags := append(globalFlags(&cfg),
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Write the document to a file instead of stdout",
			Destination: &output,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Comment enrichment concurrency",
			Value:       4,
			Sources:     cli.EnvVars("CASELOG_WORKERS"),
			Destination: &workers,
		},
	)

	return &cli.Command{
		Name:      "export",
		Usage:     "Export the activity timeline of one project",
		ArgsUsage: "<project-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("project-id is required")
			}
			projectID := c.Args().Get(0)

			ctx = logging.With(ctx, cfg.newLogger())

			// Initialize dependencies
			upstream, err := cfg.newUpstream()
			if err != nil {
				return err
			}

			fetcher := fetch.New(upstream)

			resolver, err := cfg.newResolver(fetcher, upstream)
			if err != nil {
				return err
			}

			uc := export.New(fetcher, resolver, export.WithWorkers(int(workers)))

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			spin.Suffix = fmt.Sprintf(" exporting project %s", projectID)
			spin.Start()
			timeline, err := uc.Run(ctx, projectID)
			spin.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to export timeline", goerr.V("projectID", projectID))
			}

			var w io.Writer = c.Root().Writer
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return goerr.Wrap(err, "failed to create output file", goerr.V("path", output))
				}
				defer f.Close()
				w = f
			}

			if err := adapter.NewTextRenderer().Render(w, timeline); err != nil {
				return goerr.Wrap(err, "failed to render timeline")
			}

			return nil
		},
	}
}
