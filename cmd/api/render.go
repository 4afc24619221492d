package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/firmscope/core/internal/graph"
	"github.com/firmscope/core/internal/observability"
	"github.com/firmscope/core/internal/parser"
)

var (
	heading = color.New(color.FgHiGreen, color.Bold)
	subtle  = color.New(color.FgHiBlack)
	warn    = color.New(color.FgYellow)
)

type renderOptions struct {
	factor    float64
	threshold float64
	palette   string
	pretty    bool
	quiet     bool
}

func newRenderCmd(a *app) *cobra.Command {
	opts := renderOptions{}
	cmd := &cobra.Command{
		Use:   "render DATASET",
		Short: "Build a positioned graph from a dataset file and print it as JSON",
		Long:  "Build a positioned graph from a JSON or YAML dataset. Use - to read JSON from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.palette != "" {
				a.cfg.Pipeline.PaletteFile = opts.palette
			}
			params, err := a.cfg.GraphParams()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("factor") {
				params.NodeSizeFactor = opts.factor
			}
			if cmd.Flags().Changed("threshold") {
				params.EdgeThicknessThreshold = opts.threshold
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Pipeline.BuildTimeout)
			defer cancel()
			return render(ctx, args[0], params, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().Float64Var(&opts.factor, "factor", graph.DefaultNodeSizeFactor, "node size factor")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", graph.DefaultEdgeThicknessThreshold, "minimum rendered edge thickness")
	cmd.Flags().StringVar(&opts.palette, "palette", "", "industry color file (yaml or toml)")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress the summary")
	return cmd
}

func render(ctx context.Context, path string, params graph.Params, opts renderOptions, out, errOut io.Writer) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open dataset: %w", err)
		}
		defer f.Close()
		in = f
	}

	ds, err := parser.ReadDataset(in, parser.DetectFormat(path))
	if err != nil {
		return err
	}

	start := time.Now()
	g, err := graph.Build(ctx, ds, params, observability.GetLogger())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	if opts.pretty {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(g.Snapshot()); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}

	if !opts.quiet {
		printSummary(errOut, g, time.Since(start))
	}
	return nil
}

func printSummary(w io.Writer, g *graph.Graph, took time.Duration) {
	stats := g.Stats()
	heading.Fprintf(w, "%d nodes, %d edges", stats.TotalNodes, stats.TotalEdges)
	subtle.Fprintf(w, " (%d hidden, %d dropped) in %s\n", stats.HiddenEdges, stats.DroppedEdges, took.Round(time.Millisecond))
	if stats.CollisionExhausted > 0 {
		warn.Fprintf(w, "%d nodes could not be separated\n", stats.CollisionExhausted)
	}
	for _, entry := range g.Legend() {
		fmt.Fprintf(w, "  %-24s %s %d\n", entry.Industry, subtle.Sprint(entry.Color), entry.Nodes)
	}
}
