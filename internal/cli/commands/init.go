package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapgrid/internal/cli/config"
	"github.com/leapstack-labs/leapgrid/internal/cli/output"
)

// projectFile is the leapgrid.yaml written by init.
type projectFile struct {
	Store projectStore `yaml:"store"`
	Grid  projectGrid  `yaml:"grid"`
	UI    projectUI    `yaml:"ui"`
}

type projectStore struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type projectGrid struct {
	DefaultPageSize int   `yaml:"default_page_size"`
	PageSizes       []int `yaml:"page_sizes,flow"`
}

type projectUI struct {
	Port     int  `yaml:"port"`
	AutoOpen bool `yaml:"auto_open"`
	Watch    bool `yaml:"watch"`
}

func defaultProjectFile() projectFile {
	d := config.Defaults()
	return projectFile{
		Store: projectStore{Type: d.Store.Type, Path: d.Store.Path},
		Grid:  projectGrid{DefaultPageSize: d.Grid.DefaultPageSize, PageSizes: d.Grid.PageSizes},
		UI:    projectUI{Port: d.UI.Port, AutoOpen: d.UI.AutoOpen, Watch: d.UI.Watch},
	}
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a leapgrid.yaml configuration file",
		Long: `Write a leapgrid.yaml with the default store, grid and UI settings.

Commands run in the directory, or any directory below it, pick the file up
automatically.`,
		Example: `  # Initialize in current directory
  leapgrid init

  # Initialize in a new directory
  leapgrid init explorer

  # Force overwrite existing config
  leapgrid init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(NewCommandContext(cmd).Renderer, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.DefaultConfigFile)
	}

	data, err := yaml.Marshal(defaultProjectFile())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(config.DefaultConfigFile, "success", "(created)")
	r.Println("")
	r.Success("LeapGrid project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  leapgrid seed     Fill the store with demo transactions")
	r.Println("  leapgrid serve    Open the explorer in a browser")
	r.Println("  leapgrid browse   Open the explorer in the terminal")

	return nil
}
