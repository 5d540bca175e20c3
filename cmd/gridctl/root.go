package main

import (
	"github.com/spf13/cobra"

	"github.com/couchcryptid/element-grid-service/internal/adapter/dataset"
	"github.com/couchcryptid/element-grid-service/internal/domain"
)

// gridOptions are the persistent flags shared by every subcommand.
type gridOptions struct {
	format string
	bounds domain.Bounds
	fields domain.FieldMap
}

func newRootCmd() *cobra.Command {
	opts := &gridOptions{}
	defaults := domain.DefaultFieldMap()

	root := &cobra.Command{
		Use:          "gridctl",
		Short:        "Normalize a dataset and inspect its grid layout.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.format, "format", "", "dataset format: csv, json or yaml (default from extension)")
	flags.IntVar(&opts.bounds.MaxRow, "max-rows", 10, "highest valid row number")
	flags.IntVar(&opts.bounds.MaxColumn, "max-columns", 18, "highest valid column number")
	flags.StringVar(&opts.fields.Key, "key", defaults.Key, "field holding the record key")
	flags.StringVar(&opts.fields.Row, "row", defaults.Row, "field holding the row number")
	flags.StringVar(&opts.fields.Column, "column", defaults.Column, "field holding the column number")
	flags.StringVar(&opts.fields.Category, "category", defaults.Category, "field holding the category (empty to disable)")
	flags.StringVar(&opts.fields.Sort, "sort", defaults.Sort, "numeric field that orders records (empty to keep input order)")

	root.AddCommand(
		newValidateCmd(opts),
		newLookupCmd(opts),
		newRowCmd(opts),
		newExportCmd(opts),
		newLatestCmd(opts),
	)
	return root
}

// layout reads path and builds its grid. Rejections from normalization come
// before those from layout.
type layout struct {
	rows       int
	grid       *domain.Grid
	rejections []domain.Rejection
}

func (o *gridOptions) build(cmd *cobra.Command, path string) (*layout, error) {
	if err := o.bounds.Validate(); err != nil {
		return nil, err
	}
	if err := o.fields.Validate(); err != nil {
		return nil, err
	}

	src, err := dataset.NewFileSource(path, o.format)
	if err != nil {
		return nil, err
	}
	rows, err := src.Load(cmd.Context())
	if err != nil {
		return nil, err
	}

	result := domain.Normalize(rows, domain.Options{Fields: o.fields, Bounds: o.bounds})
	grid, layoutRejections := domain.Build(result.Records, o.bounds)
	return &layout{
		rows:       len(rows),
		grid:       grid,
		rejections: append(result.Rejections, layoutRejections...),
	}, nil
}
