package cmd

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/cortexai/coursebot/internal/rag"
	"github.com/cortexai/coursebot/internal/server"
	"github.com/spf13/cobra"
)

var ingestExample = heredoc.Doc(`
	# Add new courses from a file, keeping courses already indexed
	coursebot ingest data/courses.json

	# Re-index every course in the file
	coursebot ingest --replace data/courses.json
`)

type IngestOptions struct {
	Replace bool

	files []string
	load  configLoader
	IOStreams
}

func NewCmdIngest(load configLoader, streams IOStreams) *cobra.Command {
	o := &IngestOptions{load: load, IOStreams: streams}

	cmd := &cobra.Command{
		Use:     "ingest <file>...",
		Short:   "Index course documents into the configured backend",
		Example: ingestExample,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.files = args
			return o.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&o.Replace, "replace", false, "Re-index courses that already exist")
	return cmd
}

func (o *IngestOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := o.load()
	if err != nil {
		return err
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	var total rag.IngestStats
	for _, f := range o.files {
		stats, err := rag.IngestFile(ctx, app.Engine, f, !o.Replace)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		fmt.Fprintf(o.Out, "%s: %d courses, %d chunks, %d skipped\n", f, stats.Courses, stats.Chunks, stats.Skipped)
		total.Courses += stats.Courses
		total.Chunks += stats.Chunks
		total.Skipped += stats.Skipped
	}
	if len(o.files) > 1 {
		fmt.Fprintf(o.Out, "total: %d courses, %d chunks, %d skipped\n", total.Courses, total.Chunks, total.Skipped)
	}
	return nil
}
