package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/chazu/plantview/pkg/component"
	"github.com/chazu/plantview/pkg/config"
	"github.com/chazu/plantview/pkg/kernel/sdfx"
	"github.com/chazu/plantview/pkg/store"
	"github.com/chazu/plantview/pkg/tessellate"
)

// configKey carries the loaded configuration next to the logger.
const configKey ctxKey = 1

func configFromContext(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey).(*config.Config); ok {
		return c
	}
	return config.Default()
}

// newRootCmd builds the command tree. Output goes to stdout, logs to stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		verbose    bool
		configPath string
	)
	root := &cobra.Command{
		Use:          "plantview",
		Short:        "plantview builds process plant scenes from layout scripts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			level := cfg.Level()
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(stderr, level))
			ctx = context.WithValue(ctx, configKey, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	root.AddCommand(newEvalCmd())
	root.AddCommand(newShowCmd())
	return root
}

func execute(ctx context.Context, args []string) error {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newEvalCmd() *cobra.Command {
	var (
		savePath string
		save     bool
		asJSON   bool
		noMesh   bool
	)
	cmd := &cobra.Command{
		Use:   "eval <file>",
		Short: "Evaluate a layout script and report the scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg := *configFromContext(ctx)
			if noMesh {
				cfg.Kernel.Enabled = false
			}

			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			prog := newProgress(logger)
			result := NewApp(&cfg, logger).Evaluate(string(source))
			prog.done(fmt.Sprintf("Evaluated %s", args[0]))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printResult(out, result)
			}

			if result.Scene == nil {
				return fmt.Errorf("%s: evaluation failed", args[0])
			}
			if save || savePath != "" {
				path := savePath
				if path == "" {
					path = cfg.Store.Path
				}
				if err := saveScene(ctx, path, result.Scene); err != nil {
					return err
				}
				logger.Info("saved scene", "path", path, "entities", result.Scene.Len())
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%s: %d error(s)", args[0], len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "save the scene to the configured store")
	cmd.Flags().StringVar(&savePath, "db", "", "save the scene to this database file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&noMesh, "no-mesh", false, "skip tessellation")
	return cmd
}

func saveScene(ctx context.Context, path string, s *component.Scene) error {
	st, err := store.Open(path, store.WithLogger(loggerFromContext(ctx)))
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveScene(ctx, s)
}

func printResult(w io.Writer, r EvalResult) {
	for _, e := range r.Errors {
		switch {
		case e.Line > 0:
			fmt.Fprintf(w, "error: line %d: %s\n", e.Line, e.Message)
		case e.Entity != "":
			fmt.Fprintf(w, "error: %s: %s\n", e.Entity, e.Message)
		default:
			fmt.Fprintf(w, "error: %s\n", e.Message)
		}
	}
	for _, e := range r.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", e.Entity, e.Message)
	}
	if r.Scene == nil {
		return
	}
	printScene(w, r.Scene)
	for _, m := range r.Meshes {
		fmt.Fprintf(w, "mesh %s: %d triangles\n", m.PartName, len(m.Indices)/3)
	}
}

func printScene(w io.Writer, s *component.Scene) {
	fmt.Fprintf(w, "%d entities\n", s.Len())
	for _, c := range s.All() {
		b := c.Bounds()
		fmt.Fprintf(w, "%-14s %-16s min=(%.2f, %.2f, %.2f) max=(%.2f, %.2f, %.2f)\n",
			c.Kind(), tessellate.PartName(c),
			b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
	}
}

func newShowCmd() *cobra.Command {
	var withMesh bool
	cmd := &cobra.Command{
		Use:   "show [db]",
		Short: "Load a stored scene, validate it and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg := configFromContext(ctx)
			path := cfg.Store.Path
			if len(args) == 1 {
				path = args[0]
			}

			st, err := store.Open(path, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer st.Close()

			opts := sceneOptions(cfg, logger)
			if withMesh {
				k := sdfx.New(sdfx.WithMeshCells(cfg.Kernel.MeshCells))
				opts = append(opts, component.WithMeshBuilder(tessellate.New(k, tessellate.WithLogger(logger))))
			}
			prog := newProgress(logger)
			s, err := st.LoadScene(ctx, opts...)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Loaded %d entities from %s", s.Len(), path))

			out := cmd.OutOrStdout()
			printScene(out, s)
			findings := s.Validate()
			for _, f := range findings {
				fmt.Fprintln(out, f.Error())
			}
			if withMesh {
				for _, c := range s.All() {
					rep, ok := c.Representation().(component.Representation)
					if !ok || rep.Mesh == nil {
						continue
					}
					fmt.Fprintf(out, "mesh %s: %d triangles\n", tessellate.PartName(c), rep.Mesh.TriangleCount())
				}
			}
			if errs := component.Errors(findings); len(errs) > 0 {
				return fmt.Errorf("%s: %d validation error(s)", path, len(errs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withMesh, "mesh", false, "tessellate every entity while loading")
	return cmd
}
