package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ai_content_pipeline/config"
	"ai_content_pipeline/pipeline"
	"ai_content_pipeline/publisher"
	"ai_content_pipeline/server"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "contentpipe",
		Short:         "Generate, review and package AI blog posts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ./"+config.DefaultPath+")")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newRunCommand(&configFlag))
	rootCmd.AddCommand(newConfigCommand(&configFlag))
	return rootCmd
}

func loadApp(configPath string) (*app, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			opts := []server.Option{
				server.WithLogger(a.log.WithField("component", "server")),
				server.WithMetrics(a.metrics),
			}
			if a.exchanges != nil {
				opts = append(opts, server.WithExchangeLog(a.exchanges))
			}
			srv, err := server.New(a.ctrl, a.pub, opts...)
			if err != nil {
				return err
			}
			listen := a.cfg.ServerAddr
			if addr != "" {
				listen = addr
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return srv.Start(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server_addr)")
	return cmd
}

func newRunCommand(configPath *string) *cobra.Command {
	var (
		theme     string
		pick      int
		draftOnly bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline once and export the chosen post",
		Long: "Discovers topics, drafts and ranks the posts, then finalizes the post at\n" +
			"rank --pick and writes it to the output directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runOnce(ctx, a, cmd.OutOrStdout(), theme, pick, draftOnly)
		},
	}
	cmd.Flags().StringVar(&theme, "context", "", "Theme the topics should connect to")
	cmd.Flags().IntVar(&pick, "pick", 1, "Rank of the post to finalize (1 is the best scored)")
	cmd.Flags().BoolVar(&draftOnly, "draft-only", false, "Stop after ranking and export the picked draft as is")
	return cmd
}

func runOnce(ctx context.Context, a *app, out io.Writer, theme string, pick int, draftOnly bool) error {
	updates, unsubscribe := a.ctrl.Subscribe()
	go func() {
		last := ""
		for st := range updates {
			if st.Progress.Message != "" && st.Progress.Message != last {
				last = st.Progress.Message
				a.log.WithField("progress", st.Progress.Current).Info(last)
			}
		}
	}()
	defer unsubscribe()

	if err := a.ctrl.Start(ctx, theme); err != nil {
		return err
	}
	st := a.ctrl.State()
	printRanking(out, st.Posts)

	if pick < 1 || pick > len(st.Posts) {
		return fmt.Errorf("--pick must be between 1 and %d", len(st.Posts))
	}
	chosen := st.Posts[pick-1]
	if !a.ctrl.Select(chosen.ID) {
		return fmt.Errorf("could not select %q", chosen.Title)
	}

	if !draftOnly {
		if err := a.ctrl.Finalize(ctx); err != nil {
			return err
		}
	}
	p, _ := a.ctrl.State().Selected()
	pkg, err := a.pub.Export(ctx, publisher.Article{ID: p.ID, Title: p.Title, Markdown: pipeline.Markdown(p)})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nExported %q to %s\n", p.Title, pkg.Dir)
	return nil
}

func printRanking(out io.Writer, posts []pipeline.Post) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tTITLE")
	for i, p := range posts {
		score := "-"
		if p.Score != nil {
			score = fmt.Sprintf("%.0f", *p.Score)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, score, p.Title)
	}
	tw.Flush()
}

func newConfigCommand(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var target string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(target)
			if path == "" {
				path = config.DefaultPath
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&target, "path", "", "Where to write the file (default ./"+config.DefaultPath+")")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if resolved == "" {
				resolved = "(defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK: %s\n  llm: %s %s\n  images: %s\n  topics: %d, scoring: %t\n",
				resolved, cfg.LLM.Provider, cfg.LLM.Model, cfg.Image.Provider, cfg.Pipeline.TopicCount, cfg.Pipeline.Scoring)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, validateCmd)
	return configCmd
}
