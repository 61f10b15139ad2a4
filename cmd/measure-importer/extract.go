package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/measure-importer/internal/config"
	"github.com/ehr/measure-importer/internal/measure"
)

type extractOptions struct {
	importerFlags
	measurePath  string
	documentPath string
	outputPath   string
	filter       bool
	pretty       bool
}

func extractCmd() *cobra.Command {
	var opts extractOptions
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run a measure definition against a CDA document and print the records as JSON",
		Example: "  measure-importer extract --measure diabetes.yaml --document patient.xml\n" +
			"  measure-importer extract -m diabetes.json -d ccd.xml --profile ccda --filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("filter") {
				opts.filter = cfg.FilterRecords
			}

			// logs go to stderr so stdout carries only the result
			logger := newLogger(cfg, cmd.ErrOrStderr())
			imp, err := newImporter(cmd, cfg, opts.importerFlags, logger)
			if err != nil {
				return err
			}
			svc := measure.NewService(imp, nil, logger)

			out := cmd.OutOrStdout()
			if opts.outputPath != "" && opts.outputPath != "-" {
				f, err := os.Create(opts.outputPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runExtract(cmd.Context(), svc, opts, out)
		},
	}

	cmd.Flags().StringVarP(&opts.measurePath, "measure", "m", "", "Measure definition file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.documentPath, "document", "d", "", "CDA document file")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the result to a file instead of stdout")
	cmd.Flags().StringVar(&opts.profile, "profile", "c32", "Document profile: c32 or ccda")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on unknown categories instead of skipping them")
	cmd.Flags().BoolVar(&opts.filter, "filter", false, "Apply each property's matching rules to its records")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent the JSON output")
	_ = cmd.MarkFlagRequired("measure")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func runExtract(ctx context.Context, svc *measure.Service, opts extractOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defData, err := os.ReadFile(opts.measurePath)
	if err != nil {
		return fmt.Errorf("read measure: %w", err)
	}
	def, err := measure.DecodeDefinition(defData)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.measurePath, err)
	}

	doc, err := os.ReadFile(opts.documentPath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	res, err := svc.Extract(ctx, def, doc, opts.filter)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.documentPath, err)
	}

	enc := json.NewEncoder(out)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}
