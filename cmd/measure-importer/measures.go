package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehr/measure-importer/internal/config"
	"github.com/ehr/measure-importer/internal/measure"
	"github.com/ehr/measure-importer/internal/platform/db"
)

func measuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measures",
		Short: "Manage stored measure definitions",
	}
	cmd.AddCommand(measuresImportCmd())
	cmd.AddCommand(measuresListCmd())
	cmd.AddCommand(measuresDeleteCmd())
	return cmd
}

// withStore opens the database and hands fn a service backed by it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, svc *measure.Service, b db.Beginner) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	imp, err := newImporter(cmd, cfg, importerFlags{}, logger)
	if err != nil {
		return err
	}
	svc := measure.NewService(imp, measure.NewMeasureRepoPG(pool), logger)
	return fn(ctx, svc, pool)
}

type importOptions struct {
	name        string
	description string
	replace     bool
}

func measuresImportCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Store measure definitions from YAML or JSON files",
		Long: "Each file becomes one stored measure named after the file unless --name is given.\n" +
			"All files are imported in one transaction.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.name != "" && len(args) > 1 {
				return fmt.Errorf("--name can only be used with a single file")
			}
			return withStore(cmd, func(ctx context.Context, svc *measure.Service, b db.Beginner) error {
				var stored []*measure.Measure
				err := db.WithTx(ctx, b, func(ctx context.Context) error {
					var err error
					stored, err = importMeasures(ctx, svc, args, opts)
					return err
				})
				if err != nil {
					return err
				}
				for _, m := range stored {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d properties\n", m.ID, m.Name, len(m.Definition))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Measure name (default: file name without extension)")
	cmd.Flags().StringVar(&opts.description, "description", "", "Measure description")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Replace stored measures with the same name")
	return cmd
}

func importMeasures(ctx context.Context, svc *measure.Service, paths []string, opts importOptions) ([]*measure.Measure, error) {
	stored := make([]*measure.Measure, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		def, err := measure.DecodeDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		m := &measure.Measure{Name: opts.name, Definition: def}
		if m.Name == "" {
			m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if opts.description != "" {
			desc := opts.description
			m.Description = &desc
		}

		if opts.replace {
			existing, err := svc.GetMeasureByName(ctx, m.Name)
			switch {
			case err == nil:
				if err := svc.DeleteMeasure(ctx, existing.ID); err != nil {
					return nil, err
				}
			case !errors.Is(err, measure.ErrNotFound):
				return nil, err
			}
		}

		if err := svc.CreateMeasure(ctx, m); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		stored = append(stored, m)
	}
	return stored, nil
}

func measuresListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored measures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, svc *measure.Service, _ db.Beginner) error {
				return listMeasures(ctx, svc, limit, offset, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of measures")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of measures to skip")
	return cmd
}

func listMeasures(ctx context.Context, svc *measure.Service, limit, offset int, out io.Writer) error {
	items, total, err := svc.ListMeasures(ctx, limit, offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-36s %-30s %-10s %s\n", "ID", "NAME", "PROPERTIES", "CREATED AT")
	for _, m := range items {
		fmt.Fprintf(out, "%-36s %-30s %-10d %s\n", m.ID, m.Name, len(m.Definition), m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "%d of %d measure(s)\n", len(items), total)
	return nil
}

func measuresDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID|NAME",
		Short: "Delete a stored measure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, svc *measure.Service, _ db.Beginner) error {
				m, err := deleteMeasure(ctx, svc, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", m.Name, m.ID)
				return nil
			})
		},
	}
}

// deleteMeasure accepts a measure id or name.
func deleteMeasure(ctx context.Context, svc *measure.Service, ref string) (*measure.Measure, error) {
	var (
		m   *measure.Measure
		err error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		m, err = svc.GetMeasure(ctx, id)
	} else {
		m, err = svc.GetMeasureByName(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	if err := svc.DeleteMeasure(ctx, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}
