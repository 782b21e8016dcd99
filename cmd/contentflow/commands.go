package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/plans"
	"github.com/zen-systems/contentflow/pkg/server"
	"github.com/zen-systems/contentflow/pkg/store"
	"github.com/zen-systems/contentflow/pkg/tools"
	"github.com/zen-systems/contentflow/pkg/workspace"
)

func (a *app) runCmd() *cobra.Command {
	var (
		inputs    []string
		inputFile string
		manifest  string
		mock      bool
		asJSON    bool
		maxBudget float64
	)

	cmd := &cobra.Command{
		Use:   "run [plan]",
		Short: "Run a content plan or a pipeline manifest",
		Long: `Runs a plan from the catalog (by id or route) or a pipeline manifest
with the given inputs. The final output is printed to stdout; the step
summary goes to stderr.`,
		Example: `  contentflow run market_research --input topic="AI in Healthcare" --input target_audience=clinicians
  contentflow run article-writing --input-file article.yaml --mock
  contentflow run --manifest pipelines/weekly.yaml --input topic=tea`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifest == "" && len(args) == 0 {
				return errors.New("a plan name or --manifest is required")
			}
			if cmd.Flags().Changed("max-budget-usd") {
				a.cfg.Engine.MaxBudgetUSD = maxBudget
			}

			bindings, err := parseInputs(inputFile, inputs)
			if err != nil {
				return err
			}

			rt, err := newRuntime(a.cfg, a.logger, mock)
			if err != nil {
				return err
			}
			defer rt.Close()

			engine, exec := rt.newEngine()
			var (
				name string
				res  *pipeline.Result
			)
			if manifest != "" {
				p, err := pipeline.LoadManifest(manifest, rt.catalog.Registry())
				if err != nil {
					return err
				}
				name = p.Name()
				res, err = engine.Execute(cmd.Context(), p, bindings)
				if err != nil {
					return reportRun(cmd, rt, name, res, exec, err)
				}
			} else {
				plan, ok := rt.catalog.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown plan %q (see 'contentflow plans')", args[0])
				}
				if err := plan.Prepare(rt.workspace, bindings); err != nil {
					a.logger.Warn("prefill failed", slog.String("plan", plan.ID), slog.Any("error", err))
				}
				name = plan.ID
				res, err = plan.Run(cmd.Context(), engine, bindings)
				if err != nil {
					return reportRun(cmd, rt, name, res, exec, err)
				}
			}

			if err := reportRun(cmd, rt, name, res, exec, nil); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			if s, ok := res.Output.(string); ok {
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), res.Output)
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input binding key=value (repeatable; JSON values are decoded)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "YAML or JSON file of input bindings")
	cmd.Flags().StringVarP(&manifest, "manifest", "f", "", "pipeline manifest to run instead of a catalog plan")
	cmd.Flags().BoolVar(&mock, "mock", false, "answer prompts offline with the mock adapter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run result as JSON")
	cmd.Flags().Float64Var(&maxBudget, "max-budget-usd", 0, "maximum estimated USD spend for model calls (0 disables)")
	return cmd
}

// reportRun prints the run summary to stderr and returns runErr.
func reportRun(cmd *cobra.Command, rt *runtime, name string, res *pipeline.Result, exec *pipeline.AdapterExecutor, runErr error) error {
	if res == nil {
		return runErr
	}
	w := cmd.ErrOrStderr()
	printRunSummary(w, name, res, exec.CostReport())
	fmt.Fprintln(w, dimStyle.Render("evidence "+rt.recorder.RunDir(res.RunID)))
	return runErr
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [manifest.yaml]",
		Short: "Validate a pipeline manifest, or the configuration when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				errs := a.cfg.Aliases.ValidateRoutingConfig(a.cfg.RoutingConfig)
				if len(errs) == 0 {
					fmt.Fprintln(out, successStyle.Render("Configuration is valid."))
					return nil
				}
				for _, err := range errs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", err)
				}
				return fmt.Errorf("found %d routing errors", len(errs))
			}

			catalog, err := plans.Default()
			if err != nil {
				return err
			}
			p, err := pipeline.LoadManifest(args[0], catalog.Registry())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s: %d steps, inputs: %s\n",
				successStyle.Render("valid"), p.Name(), p.StepCount(), strings.Join(inputNames(p), ", "))
			return nil
		},
	}
}

func inputNames(p *pipeline.Pipeline) []string {
	var names []string
	for _, in := range p.Inputs() {
		if in.HasDefault {
			names = append(names, in.Name+"?")
		} else {
			names = append(names, in.Name)
		}
	}
	return names
}

func (a *app) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans [plan]",
		Short: "List content plans, or show one plan's inputs and steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := plans.Default()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				tbl := newTable("PLAN", "ROUTE", "REQUIRED", "OUTPUT FOLDER")
				for _, s := range catalog.Summaries() {
					tbl.Row(s.ID, "/api/"+s.Route, strings.Join(s.Required, ", "), s.Family)
				}
				_, err := fmt.Fprintln(out, tbl)
				return err
			}

			plan, ok := catalog.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown plan %q", args[0])
			}
			fmt.Fprintln(out, titleStyle.Render(plan.Title))
			if d := plan.Pipeline.Description(); d != "" {
				fmt.Fprintln(out, d)
			}
			fmt.Fprintln(out)

			tbl := newTable("INPUT", "REQUIRED", "DESCRIPTION")
			for _, in := range plan.Pipeline.Inputs() {
				tbl.Row(in.Name, strconv.FormatBool(!in.HasDefault), in.Description)
			}
			fmt.Fprintln(out, tbl)
			fmt.Fprintln(out)

			plan.Pipeline.Walk(func(depth int, s pipeline.Step) {
				fmt.Fprintf(out, "%s%s %s\n", strings.Repeat("  ", depth), s.Name, dimStyle.Render("("+string(s.Kind)+" "+s.Target()+")"))
			})
			return nil
		},
	}
}

func (a *app) toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools plans can call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := workspace.New(a.cfg.OutputDir)
			if err != nil {
				return err
			}
			reg := tools.NewStandardRegistry(tools.Options{
				TavilyAPIKey:     a.cfg.TavilyAPIKey,
				ElevenLabsAPIKey: a.cfg.ElevenLabsAPIKey,
				Workspace:        ws,
				Logger:           a.logger,
			})
			tbl := newTable("TOOL", "DESCRIPTION")
			for _, t := range reg.List() {
				tbl.Row(t.Name, t.Description)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return err
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var mock bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the plans over HTTP",
		Long: `Starts the HTTP API. Each plan is mounted at POST /api/<route>; run
history is served at /api/runs and liveness at /health.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(a.cfg, a.logger, mock)
			if err != nil {
				return err
			}
			defer rt.Close()

			deps := server.Deps{
				Catalog: rt.catalog,
				NewEngine: func() *pipeline.Engine {
					engine, _ := rt.newEngine()
					return engine
				},
				Workspace: rt.workspace,
				Tools:     rt.tools,
				Logger:    a.logger,
				Version:   version,
			}
			if rt.store != nil {
				deps.Runs = rt.store
			}

			srv, err := server.New(a.cfg.Server, deps)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().BoolVar(&mock, "mock", false, "answer prompts offline with the mock adapter")
	bindFlags(a.v, cmd.Flags(), map[string]string{"addr": "server.addr"})
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var filter store.RunFilter

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(a.cfg.DatabasePath(), a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), run)
			}

			runs, err := st.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tbl := newTable("RUN", "PIPELINE", "STATUS", "STARTED", "DURATION")
			for _, r := range runs {
				tbl.Row(r.ID, r.Pipeline,
					statusText(pipeline.Status(r.Status)),
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration.Round(time.Millisecond).String())
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return err
		},
	}

	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&filter.Pipeline, "pipeline", "", "only runs of this pipeline")
	cmd.Flags().StringVar(&filter.Status, "status", "", "only runs with this status")
	cmd.Flags().BoolVar(&filter.IncludeChildren, "all", false, "include sub-pipeline runs")
	return cmd
}

func (a *app) routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Show model routing rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			routing := a.cfg.RoutingConfig
			tbl := newTable("TASK TYPE", "ADAPTER", "MODEL", "STATUS", "TRIGGERS")

			names := make([]string, 0, len(routing.TaskTypes))
			for name := range routing.TaskTypes {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				tt := routing.TaskTypes[name]
				tbl.Row(name, tt.Adapter, a.cfg.Aliases.Resolve(tt.Model),
					a.keyStatus(tt.Adapter), strings.Join(tt.Triggers, ", "))
			}
			tbl.Row("DEFAULT", routing.Default.Adapter,
				a.cfg.Aliases.Resolve(routing.Default.Model), a.keyStatus(routing.Default.Adapter), "-")
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return err
		},
	}
}

func (a *app) keyStatus(adapterName string) string {
	if a.cfg.HasAdapter(adapterName) {
		return successStyle.Render("ready")
	}
	return skipStyle.Render("no key")
}
