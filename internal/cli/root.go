// Package cli implements mapctl, the offline tool for the autosaved session.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mapwright/mapwright/internal/store"
)

type App struct {
	Driver     string
	DSN        string
	Key        string
	PrettyJSON bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "mapctl",
		Short:        "Inspect, export and reset the autosaved map session",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Summarize the recovered map
  mapctl inspect

  # Render it to a PNG
  mapctl export --out map.png --width 2048 --captions

  # Use a redis session store
  mapctl --driver redis --dsn localhost:6379 inspect
`),
	}

	cmd.PersistentFlags().StringVar(&app.Driver, "driver", envOr("MAPWRIGHT_SESSION_DRIVER", "bolt"), "Session store driver (memory|bolt|sqlite|redis)")
	cmd.PersistentFlags().StringVar(&app.DSN, "dsn", envOr("MAPWRIGHT_SESSION_PATH", "./data/session.db"), "Session store path, or address for redis")
	cmd.PersistentFlags().StringVar(&app.Key, "key", envOr("MAPWRIGHT_SESSION_KEY", store.DefaultSessionKey), "Session key")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newInspectCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newFrameCmd(app))
	cmd.AddCommand(newResetCmd(app))
	cmd.AddCommand(newHashPasscodeCmd(app))

	return cmd
}

func openSession(ctx context.Context, app *App) (store.Session, error) {
	s, err := store.Open(ctx, app.Driver, app.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s session store: %w", app.Driver, err)
	}
	return s, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
