package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/curtisra-gif/dns-failover/internal/config"
	"github.com/curtisra-gif/dns-failover/internal/failover"
	"github.com/curtisra-gif/dns-failover/internal/logging"
	"github.com/curtisra-gif/dns-failover/internal/server"
)

type rootOptions struct {
	configFile string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "failover",
		Short:         "DNS failover controller",
		Long:          `failover keeps each group's DNS records pointed at its primary target while it is healthy and at its backup target while it is not.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newOnceCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	return rootCmd
}

// setup loads configuration and wires the process.
func (o *rootOptions) setup() (*app, error) {
	vars := config.Environ()
	if o.configFile != "" {
		vars["CONFIG_FILE"] = o.configFile
	}
	cfg, err := config.LoadFrom(vars)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	for _, w := range cfg.Warnings {
		log.Warn("config: " + w)
	}

	a, err := newApp(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor all groups and fail over until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.log.Sync() //nolint:errcheck
			defer a.close()

			a.runner.Init(ctx)

			g, ctx := errgroup.WithContext(ctx)
			if addr := a.cfg.Status.Addr; addr != "" {
				srv := server.New(addr, server.NewRouter(a.runner, a.metrics.Registry), a.log.Named("status"))
				g.Go(func() error { return srv.Run(ctx) })
			}
			g.Go(func() error { return a.runner.Run(ctx) })
			return g.Wait()
		},
	}
}

func newOnceCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Evaluate every group a single time and print the resulting state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.log.Sync() //nolint:errcheck
			defer a.close()

			a.runner.Init(cmd.Context())
			a.runner.Tick(cmd.Context())
			return printStatuses(cmd.OutOrStdout(), a.runner.Statuses(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where every managed name points right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.log.Sync() //nolint:errcheck
			defer a.close()

			bindings, err := a.inspect(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(bindings)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tSUBDOMAIN\tPOINTS\tRECORDS")
			for _, g := range a.cfg.Groups {
				for _, b := range bindings[g.Name] {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.Name, b.Subdomain, b.Points, describeRecords(b))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func describeRecords(b failover.Binding) string {
	if len(b.Records) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(b.Records))
	for _, r := range b.Records {
		parts = append(parts, fmt.Sprintf("%s %s", r.Type, r.Content))
	}
	return strings.Join(parts, ", ")
}

func printStatuses(w io.Writer, statuses []failover.Status, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(statuses)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tACTIVE\tTARGET\tFAILURES\tRECOVERIES\tPENDING")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n",
			st.Group, st.Active, st.Target, st.ConsecutiveFailures, st.ConsecutiveRecoveries, st.PendingReconcile)
	}
	return tw.Flush()
}
