package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/cortexai/coursebot/internal/rag"
	"github.com/cortexai/coursebot/internal/server"
	"github.com/spf13/cobra"
)

var askExample = heredoc.Doc(`
	# Ask one question against the configured catalog
	coursebot ask "What is covered in lesson 2 of the MCP course?"

	# Continue an existing conversation
	coursebot ask --session session_1234 "And lesson 3?"
`)

type AskOptions struct {
	Session string
	Seed    bool

	query string
	load  configLoader
	IOStreams
}

func NewCmdAsk(load configLoader, streams IOStreams) *cobra.Command {
	o := &AskOptions{load: load, IOStreams: streams, Seed: true}

	cmd := &cobra.Command{
		Use:     "ask <question>",
		Short:   "Answer a single question and print its sources",
		Example: askExample,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&o.Session, "session", o.Session, "Session ID whose history is used and extended")
	cmd.Flags().BoolVar(&o.Seed, "seed", o.Seed, "Ingest the seed file before asking")
	return cmd
}

func (o *AskOptions) Complete(args []string) error {
	o.query = strings.TrimSpace(strings.Join(args, " "))
	if o.query == "" {
		return fmt.Errorf("question must not be empty")
	}
	return nil
}

func (o *AskOptions) Run(ctx context.Context) error {
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

	if o.Seed {
		if err := app.Seed(ctx); err != nil {
			return err
		}
	}

	res, err := app.RAG.Query(ctx, rag.Request{Query: o.query, SessionID: o.Session})
	if err != nil {
		return err
	}
	writeAnswer(o.Out, res)
	return nil
}
