package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/internal/store"
)

// SeedOptions holds options for the seed command.
type SeedOptions struct {
	Count int
	Seed  int64
}

// SeedOutput is the JSON form of a seed run.
type SeedOutput struct {
	Store    string `json:"store"`
	Inserted int    `json:"inserted"`
	Total    int    `json:"total"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	opts := &SeedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the store with demo transactions",
		Long: `Generate demo transactions and insert them into the store.

Transactions already present are kept. Use --seed to generate the same
data on every run.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Insert 500 transactions
  leapgrid seed

  # Insert a reproducible set of 10000 transactions
  leapgrid seed --count 10000 --seed 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 500, "Number of transactions to generate")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Random seed (0 uses the current time)")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *SeedOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()
	r := cc.Renderer

	st, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	inserted, err := st.Seed(ctx, store.SeedOptions{Count: opts.Count, Seed: opts.Seed})
	if err != nil {
		return err
	}
	total, err := st.Count(ctx)
	if err != nil {
		return err
	}

	out := SeedOutput{Store: storeLabel(cc.Cfg), Inserted: inserted, Total: total}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Seeded Transactions"))
		r.Println("")
		r.Println(output.FormatKeyValue("Store", out.Store))
		r.Println(output.FormatKeyValue("Inserted", strconv.Itoa(out.Inserted)))
		r.Println(output.FormatKeyValue("Total", strconv.Itoa(out.Total)))
	default:
		r.StatusLine("transactions", "success", strconv.Itoa(inserted)+" inserted")
		r.Println("")
		r.Success(strconv.Itoa(total) + " transactions in " + out.Store)
	}
	return nil
}
