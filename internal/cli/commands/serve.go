package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/config"
	"github.com/leapstack-labs/leapgrid/internal/ui"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transaction explorer in the browser",
		Long: `Start a local web server with the transaction explorer grid.

The grid's page, page size, sort, filters, visible columns and selection
live in the page URL, so any view can be bookmarked, shared or restored
with the browser's back and forward buttons.`,
		Example: `  # Serve on the default port and open a browser
  leapgrid serve

  # Serve on a custom port without opening a browser
  leapgrid serve --port 3000 --open=false

  # Serve a PostgreSQL store
  leapgrid serve --driver postgres --dsn "postgres://localhost/grid"`,
		RunE: runServe,
	}

	cmd.Flags().String("host", config.DefaultHost, "Host to listen on")
	cmd.Flags().Int("port", config.DefaultPort, "Port to serve on")
	cmd.Flags().Bool("open", true, "Open the explorer in a browser")
	cmd.Flags().Bool("watch", true, "Refresh open grids when the store file changes")
	cmd.Flags().Bool("dev", false, "Serve static assets from disk")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	secret := cfg.UI.SessionSecret
	if secret == "" {
		secret, err = generateSessionSecret()
		if err != nil {
			return err
		}
		cc.Renderer.Warning("no ui.session_secret configured; sessions will not survive a restart")
	}

	server := ui.NewServer(ui.Config{
		Store:         st,
		Host:          cfg.UI.Host,
		Port:          cfg.UI.Port,
		Watch:         cfg.UI.Watch,
		SessionSecret: secret,
		SessionMaxAge: cfg.UI.SessionMaxAge,
		ViewTTL:       cfg.UI.ViewTTL,
		Defaults:      cc.GridDefaults(),
		PageSizes:     cfg.Grid.PageSizes,
		Prefix:        cfg.Grid.ParamPrefix,
		Dev:           cfg.UI.Dev,
		Logger:        cc.Logger,
	})

	url := serverURL(cfg.UI.Host, cfg.UI.Port)
	if cfg.UI.AutoOpen {
		go openBrowser(ctx, url)
	}

	cc.Renderer.Printf("Serving transactions on %s\n", url)
	cc.Renderer.Muted("Press Ctrl+C to stop")

	return server.Serve(ctx)
}

func serverURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = config.DefaultHost
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// generateSessionSecret returns a random secret for a single server run.
func generateSessionSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(ctx context.Context, url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}

	_ = cmd.Start()
}
