package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"insight-backend/internal/analyses"
	"insight-backend/internal/risk"
	"insight-backend/internal/sessions"
	"insight-backend/internal/shared/config"
	"insight-backend/internal/synth"
)

const dateLayout = "2006-01-02"

type cli struct {
	cfg       config.Config
	skipEnv   bool
	svc       *analyses.Service
	sessions  *sessions.Store
	runParams runFlags
}

type runFlags struct {
	granularity string
	limit       int
	from        string
	to          string
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: config.Defaults()}

	root := &cobra.Command{
		Use:           "insight",
		Short:         "Profile order files and run insight capabilities locally",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.skipEnv {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&c.skipEnv, "no-env", false, "ignore CONFIG_FILE and environment overrides")

	profileCmd := &cobra.Command{
		Use:   "profile <file>",
		Short: "Print the overview, schema and capability availability of a csv or xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runProfile,
	}

	runCmd := &cobra.Command{
		Use:   "run <file> <capability>",
		Short: "Run one capability against a csv or xlsx file",
		Args:  cobra.ExactArgs(2),
		RunE:  c.runCapability,
	}
	runCmd.Flags().StringVar(&c.runParams.granularity, "granularity", "", "day or month")
	runCmd.Flags().IntVar(&c.runParams.limit, "limit", 0, "ranking size")
	runCmd.Flags().StringVar(&c.runParams.from, "from", "", "period start, inclusive")
	runCmd.Flags().StringVar(&c.runParams.to, "to", "", "period end, exclusive")

	var gen generateFlags
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic order-item csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, gen)
		},
	}
	generateCmd.Flags().IntVar(&gen.rows, "rows", synth.DefaultRows, "order-item rows to write")
	generateCmd.Flags().IntVar(&gen.members, "members", synth.DefaultMembers, "distinct members")
	generateCmd.Flags().IntVar(&gen.products, "products", synth.DefaultProducts, "distinct products")
	generateCmd.Flags().StringVar(&gen.start, "start", "2024-01-01", "first order date (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&gen.end, "end", "2025-12-31", "last order date (YYYY-MM-DD)")
	generateCmd.Flags().Uint64Var(&gen.seed, "seed", 42, "random seed")
	generateCmd.Flags().StringVar(&gen.out, "out", "orders_items.csv", "output path, .gz compresses, - writes to stdout")

	root.AddCommand(profileCmd, runCmd, generateCmd)
	return root
}

// service builds an in-process analyses service with no persistence.
func (c *cli) service() *analyses.Service {
	if c.svc != nil {
		return c.svc
	}
	c.sessions = sessions.New(sessions.WithTTL(0))
	c.svc = &analyses.Service{
		Sessions:       c.sessions,
		Risk:           risk.NewEvaluator(c.cfg.Risk),
		MaxLimit:       c.cfg.RankMaxLimit,
		MaxUploadBytes: c.cfg.MaxUploadBytes(),
	}
	return c.svc
}

func (c *cli) open(ctx context.Context, path string) (*analyses.Service, analyses.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, analyses.Summary{}, err
	}
	defer f.Close()

	svc := c.service()
	summary, err := svc.Bootstrap(ctx, "cli", filepath.Base(path), f)
	if err != nil {
		return nil, analyses.Summary{}, err
	}
	return svc, summary, nil
}

type profileOutput struct {
	Summary      analyses.Summary            `json:"summary"`
	Capabilities []analyses.CapabilityStatus `json:"capabilities"`
}

func (c *cli) runProfile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, summary, err := c.open(ctx, args[0])
	if err != nil {
		return err
	}
	defer svc.Close(ctx, summary.AnalysisID)

	caps, err := svc.Capabilities(ctx, summary.AnalysisID)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), profileOutput{Summary: summary, Capabilities: caps})
}

func (c *cli) runCapability(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, summary, err := c.open(ctx, args[0])
	if err != nil {
		return err
	}
	defer svc.Close(ctx, summary.AnalysisID)

	params := analyses.Params{
		Granularity: c.runParams.granularity,
		From:        c.runParams.from,
		To:          c.runParams.to,
	}
	if cmd.Flags().Changed("limit") {
		limit := c.runParams.limit
		params.Limit = &limit
	}

	result, err := svc.Run(ctx, summary.AnalysisID, args[1], params)
	var blocked *analyses.BlockedError
	if errors.As(err, &blocked) {
		if werr := writeJSON(cmd.OutOrStdout(), map[string]any{"blocked": true, "findings": blocked.Findings}); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

type generateFlags struct {
	rows     int
	members  int
	products int
	start    string
	end      string
	seed     uint64
	out      string
}

func runGenerate(cmd *cobra.Command, gen generateFlags) error {
	loc := time.FixedZone("UTC+8", 8*60*60)
	start, err := time.ParseInLocation(dateLayout, gen.start, loc)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, gen.end, loc)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	var st synth.Stats
	generate := func(w io.Writer) error {
		var err error
		st, err = synth.Generate(w, synth.Options{
			Rows:     gen.rows,
			Members:  gen.members,
			Products: gen.products,
			Start:    start,
			End:      end,
			Seed:     gen.seed,
			Location: loc,
		})
		return err
	}

	if gen.out == "-" {
		return generate(cmd.OutOrStdout())
	}
	if dir := filepath.Dir(gen.out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(gen.out)
	if err != nil {
		return err
	}
	err = writeOutput(f, strings.HasSuffix(gen.out, ".gz"), generate)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", gen.out, cerr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows (%d orders) to %s\n", st.Rows, st.Orders, gen.out)
	return nil
}

// writeOutput runs write against w, through gzip when compress is set. The
// gzip stream is closed before returning so a failed trailer write surfaces.
func writeOutput(w io.Writer, compress bool, write func(io.Writer) error) error {
	if !compress {
		return write(w)
	}
	gz := gzip.NewWriter(w)
	if err := write(gz); err != nil {
		_ = gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
