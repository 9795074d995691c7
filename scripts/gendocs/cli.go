package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapgrid/internal/cli"
	"github.com/leapstack-labs/leapgrid/internal/cli/config"
	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// locationArg marks commands that open the grid at a location.
const locationArg = "[querystring]"

// generateCLIDocs writes index.md, locations.md and one page per command.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cli.NewRootCmd()
	commands := documented(root)

	pages := map[string][]byte{
		"index.md":     cliIndex(root, commands),
		"locations.md": locationsPage(),
	}
	for _, cmd := range commands {
		pages[cmd.Name()+".md"] = commandPage(cmd)
	}

	for name, data := range pages {
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		log.Printf("  Generated %s", name)
	}
	return nil
}

func documented(root *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, cmd := range root.Commands() {
		if cmd.Hidden || cmd.Name() == "help" {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

func opensGrid(cmd *cobra.Command) bool {
	return strings.Contains(cmd.Use, locationArg)
}

func cliIndex(root *cobra.Command, commands []*cobra.Command) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", "Command-line interface reference for LeapGrid")
	w.GeneratedMarker()

	w.Header(1, "CLI Reference")
	w.Paragraph("LeapGrid runs the transaction grid in the browser, in the terminal and as one-shot queries. " +
		"Every front end reads and writes the same URL query string, described in [Grid Locations](/cli/locations).")
	w.CodeBlock("bash", "go install github.com/leapstack-labs/leapgrid/cmd/leapgrid@latest")

	var grids, other [][]string
	for _, cmd := range commands {
		row := []string{fmt.Sprintf("[%s](/cli/%s)", InlineCode(cmd.Name()), cmd.Name()), cleanDescription(cmd.Short)}
		if opensGrid(cmd) {
			grids = append(grids, row)
		} else {
			other = append(other, row)
		}
	}
	w.Header(2, "Grid Commands")
	w.Paragraph(fmt.Sprintf("These commands take an optional %s and open the grid at that location.", InlineCode(locationArg)))
	w.Table([]string{"Command", "Description"}, grids)
	w.Header(2, "Other Commands")
	w.Table([]string{"Command", "Description"}, other)

	w.Header(2, "Global Options")
	writeFlagsTable(w, root.PersistentFlags())

	w.Header(2, "Environment Variables")
	w.Paragraph(fmt.Sprintf("Every configuration key can be set from the environment as %s followed by the key, "+
		"with nested keys joined by a double underscore. Flags take precedence over the environment, which takes precedence over %s.",
		InlineCode(config.EnvPrefix), InlineCode(config.DefaultConfigFile)))
	var env [][]string
	for _, f := range configFields() {
		env = append(env, []string{InlineCode(f.Env), InlineCode(f.Key)})
	}
	w.Table([]string{"Variable", "Key"}, env)

	w.Header(2, "Exit Codes")
	w.Table([]string{"Code", "Meaning"}, [][]string{
		{InlineCode("0"), "Success"},
		{InlineCode("1"), "Error, including a page that failed to load"},
	})
	return w.Bytes()
}

// locationsPage documents the grid's query parameters. Examples are
// produced by the codec the commands use.
func locationsPage() []byte {
	defaults := config.Defaults()
	codec := grid.NewCodec(grid.Defaults{PageSize: defaults.Grid.DefaultPageSize})

	w := NewMarkdownWriter()
	w.Frontmatter("Grid Locations", "Query parameters that describe a transaction grid")
	w.GeneratedMarker()

	w.Header(1, "Grid Locations")
	w.Paragraph("A grid location is the query string of the explorer's address. " +
		"The browser, the terminal browser, the shell and the query command all accept one, so a location can be copied between them. " +
		"Malformed values never fail: each falls back to its default on its own.")

	w.Header(2, "Parameters")
	w.Table([]string{"Parameter", "Repeats", "Meaning"}, [][]string{
		{InlineCode(grid.ParamPage), "no", fmt.Sprintf("1-based page number, default %s", InlineCode("1"))},
		{InlineCode(grid.ParamSize), "no", fmt.Sprintf("rows per page, default %s", InlineCode(fmt.Sprint(defaults.Grid.DefaultPageSize)))},
		{InlineCode(grid.ParamSort), "yes", fmt.Sprintf("%s in priority order; %s or %s", InlineCode("column:dir"), InlineCode(string(grid.Asc)), InlineCode(string(grid.Desc)))},
		{InlineCode(grid.FilterPrefix + "<column>"), "yes", "accepted values for a filterable column"},
		{InlineCode(grid.ParamShow), "yes", "columns to show"},
		{InlineCode(grid.ParamHide), "yes", "columns to hide; hide wins over show"},
		{InlineCode(grid.ParamSelect), "yes", "selected transaction hashes"},
	})
	w.Paragraph(fmt.Sprintf("With %s set, every parameter carries that prefix and other parameters in the address are left alone.",
		InlineCode("grid.param_prefix")))

	w.Header(2, "Columns")
	var rows [][]string
	for _, c := range explorer.Columns(nil) {
		label := c.Label
		if label == "" {
			label = grid.TitleLabel(c.ID)
		}
		var values []string
		for _, o := range c.Options {
			values = append(values, InlineCode(o.Value))
		}
		rows = append(rows, []string{InlineCode(c.ID), label, yesNo(c.Sortable), yesNo(c.Filterable), yesNo(c.Hideable), strings.Join(values, ", ")})
	}
	w.Table([]string{"Column", "Header", "Sortable", "Filterable", "Hideable", "Values"}, rows)

	w.Header(2, "Examples")
	examples := []struct {
		what  string
		query grid.Query
	}{
		{"Default view", codec.Decode(nil)},
		{"Failed and pending transactions, largest value first", grid.Query{
			PageSize: defaults.Grid.DefaultPageSize,
			Sort:     []grid.SortKey{{ColumnID: explorer.ColValue, Direction: grid.Desc}},
			Filters:  map[string][]string{explorer.ColStatus: {string(explorer.StatusFailed), string(explorer.StatusPending)}},
		}},
		{"Third page of 50 without the sender column", grid.Query{
			PageIndex:        2,
			PageSize:         50,
			ColumnVisibility: map[string]bool{explorer.ColFrom: false},
		}},
	}
	for _, ex := range examples {
		w.Paragraph(ex.what + ":")
		w.CodeBlock("bash", "leapgrid query '"+codec.Encode(ex.query).Encode()+"'")
	}
	return w.Bytes()
}

func commandPage(cmd *cobra.Command) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.Name(), cmd.Short)
	w.GeneratedMarker()

	w.Header(1, cmd.Name())
	if cmd.Long != "" {
		w.Paragraph(cmd.Long)
	} else {
		w.Paragraph(cmd.Short)
	}

	w.Header(2, "Usage")
	use := cmd.UseLine()
	if cmd.HasSubCommands() {
		use = fmt.Sprintf("leapgrid %s <subcommand>", cmd.Name())
	}
	w.CodeBlock("bash", use)

	if opensGrid(cmd) {
		w.Paragraph(fmt.Sprintf("%s is a grid location such as %s or %s. See [Grid Locations](/cli/locations).",
			InlineCode(locationArg), InlineCode("page=2&size=50"), InlineCode("/transactions?sort=value:desc")))
	}

	if cmd.HasSubCommands() {
		w.Header(2, "Subcommands")
		var rows [][]string
		for _, sub := range cmd.Commands() {
			if !sub.Hidden {
				rows = append(rows, []string{InlineCode(sub.Name()), cleanDescription(sub.Short)})
			}
		}
		w.Table([]string{"Subcommand", "Description"}, rows)
	}

	if cmd.HasLocalFlags() {
		w.Header(2, "Options")
		writeFlagsTable(w, cmd.LocalFlags())
	}

	if cmd.Example != "" {
		w.Header(2, "Examples")
		w.CodeBlock("bash", dedent(cmd.Example))
	}
	return w.Bytes()
}

func writeFlagsTable(w *MarkdownWriter, flags *pflag.FlagSet) {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		short := ""
		if f.Shorthand != "" {
			short = "-" + f.Shorthand
		}
		def := f.DefValue
		if def != "" && f.Value.Type() != "bool" {
			def = InlineCode(def)
		}
		rows = append(rows, []string{InlineCode("--" + f.Name), short, def, cleanDescription(f.Usage)})
	})
	w.Table([]string{"Option", "Short", "Default", "Description"}, rows)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

// dedent strips the two-space indent cobra examples are written with.
func dedent(example string) string {
	lines := strings.Split(strings.Trim(example, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, "  ")
	}
	return strings.Join(lines, "\n")
}
