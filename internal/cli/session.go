package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapwright/mapwright/internal/auth"
	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/export"
	"github.com/mapwright/mapwright/internal/render"
	"github.com/mapwright/mapwright/internal/store"
)

type layerSummary struct {
	Name     string `json:"name"`
	Hidden   bool   `json:"hidden"`
	Groups   int    `json:"groups"`
	Items    int    `json:"items"`
	Selected int    `json:"selected"`
}

func newInspectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the autosaved map",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := recoverMap(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}

			layers := make([]layerSummary, 0, len(m.Layers))
			for _, l := range m.Layers {
				s := layerSummary{Name: l.Name, Hidden: l.IsHidden, Groups: len(l.MapItemGroups), Selected: len(l.Selected())}
				for _, g := range l.MapItemGroups {
					s.Items += len(g.MapItems)
				}
				layers = append(layers, s)
			}
			bounds, _ := export.ContentBounds(m)
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"name":              m.Ref.Name,
					"activeLayer":       m.ActiveLayer,
					"layers":            layers,
					"bounds":            bounds,
					"zoom":              m.Zoom,
					"hasUnsavedChanges": m.HasUnsavedChanges,
				},
			})
		},
	}
}

func newExportCmd(app *App) *cobra.Command {
	var (
		out      string
		width    int
		captions bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the autosaved map to a PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := recoverMap(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if out == "" {
				out = export.FileName(m.Ref.Name) + ".png"
			}
			f, err := os.Create(out)
			if err != nil {
				return writeErr(cmd, err)
			}
			err = export.PNG(f, m, export.Options{Width: width, Palette: export.DefaultPalette(), Captions: captions})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"file": out}})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: <map name>.png)")
	cmd.Flags().IntVar(&width, "width", export.DefaultWidth, "Image width in pixels")
	cmd.Flags().BoolVar(&captions, "captions", false, "Draw visible captions")
	return cmd
}

func newFrameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "frame",
		Short: "Print the draw commands for the autosaved map",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := recoverMap(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": render.Frame(m)})
		},
	}
}

func newResetCmd(app *App) *cobra.Command {
	var sample bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the autosaved map",
		Long:  "Discard the autosaved map so the next server start begins fresh. With --sample the sample map is stored instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			if sample {
				data, err := document.Encode(document.NewSampleMap())
				if err != nil {
					return writeErr(cmd, err)
				}
				err = store.Saver{Store: s, Key: app.Key}.Save(ctx, data)
				if err != nil {
					return writeErr(cmd, err)
				}
			} else if err := s.Delete(ctx, app.Key); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"key": app.Key, "sample": sample}})
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "Replace the session with the sample map")
	return cmd
}

func newHashPasscodeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passcode <passcode>",
		Short: "Print the bcrypt hash for MAPWRIGHT_VIEWER_PASSCODE_HASH or MAPWRIGHT_EDITOR_PASSCODE_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPasscode(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func recoverMap(cmd *cobra.Command, app *App) (*document.Map, error) {
	ctx := cmd.Context()
	s, err := openSession(ctx, app)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	m, err := store.Recover(ctx, s, app.Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no session under %q", app.Key)
	}
	return m, err
}
