package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/element-grid-service/internal/adapter/dataset"
	"github.com/couchcryptid/element-grid-service/internal/domain"
)

func newValidateCmd(opts *gridOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Report rows that cannot be placed; exits non-zero if there are any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.build(cmd, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d rows, %d placed, %d rejected\n", l.rows, l.grid.Len(), len(l.rejections))
			counts := domain.CountByKind(l.rejections)
			for _, kind := range domain.RejectionKinds {
				if n := counts[kind]; n > 0 {
					fmt.Fprintf(out, "  %-20s %d\n", kind, n)
				}
			}
			for _, r := range l.rejections {
				fmt.Fprintf(out, "  - %s\n", r)
			}

			if len(l.rejections) > 0 {
				return fmt.Errorf("%d of %d rows rejected", len(l.rejections), l.rows)
			}
			fmt.Fprintln(out, "PASS")
			return nil
		},
	}
}

func newLookupCmd(opts *gridOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <file> <key>",
		Short: "Print the record placed under key as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.build(cmd, args[0])
			if err != nil {
				return err
			}
			rec, ok := l.grid.Lookup(args[1])
			if !ok {
				return fmt.Errorf("key %q not found", args[1])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

func newRowCmd(opts *gridOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "row <file> <row>",
		Short: "List the occupied cells of one row, left to right",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("row must be an integer: %q", args[1])
			}
			l, err := opts.build(cmd, args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tKEY\tCATEGORY")
			for _, p := range l.grid.CellsInRow(row) {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", p.Column, p.Record.Key, p.Record.Category)
			}
			return tw.Flush()
		},
	}
}

type exportDoc struct {
	Bounds      domain.Bounds  `json:"bounds" yaml:"bounds"`
	Fingerprint string         `json:"fingerprint" yaml:"fingerprint"`
	Records     []exportRecord `json:"records" yaml:"records"`
	Rejected    int            `json:"rejected" yaml:"rejected"`
}

type exportRecord struct {
	Key      string `json:"key" yaml:"key"`
	Row      int    `json:"row" yaml:"row"`
	Column   int    `json:"column" yaml:"column"`
	Category string `json:"category" yaml:"category"`
}

func newExportCmd(opts *gridOptions) *cobra.Command {
	var output, outputFormat string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the placed records in layout order as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encode, err := exportEncoder(outputFormat)
			if err != nil {
				return err
			}
			l, err := opts.build(cmd, args[0])
			if err != nil {
				return err
			}

			doc := exportDoc{
				Bounds:      l.grid.Bounds(),
				Fingerprint: l.grid.Fingerprint(),
				Records:     make([]exportRecord, 0, l.grid.Len()),
				Rejected:    len(l.rejections),
			}
			for _, rec := range l.grid.Records() {
				doc.Records = append(doc.Records, exportRecord{
					Key: rec.Key, Row: rec.Row, Column: rec.Column, Category: rec.Category,
				})
			}

			if output == "" || output == "-" {
				return encode(cmd.OutOrStdout(), doc)
			}
			return writeFile(output, func(w io.Writer) error { return encode(w, doc) })
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "destination file, - for stdout")
	cmd.Flags().StringVar(&outputFormat, "output-format", "json", "json or yaml")
	return cmd
}

func exportEncoder(format string) (func(io.Writer, exportDoc) error, error) {
	switch format {
	case "json":
		return func(w io.Writer, doc exportDoc) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}, nil
	case "yaml", "yml":
		return func(w io.Writer, doc exportDoc) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: want json or yaml", format)
	}
}

// writeFile creates path and hands it to write. A failed close is returned.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func newLatestCmd(opts *gridOptions) *cobra.Command {
	fields := domain.DefaultSampleFields()
	var samplesFormat string

	cmd := &cobra.Command{
		Use:   "latest <file> <samples> <key>",
		Short: "Print the newest sample joined to the record under key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fields.Validate(); err != nil {
				return err
			}
			l, err := opts.build(cmd, args[0])
			if err != nil {
				return err
			}
			rec, ok := l.grid.Lookup(args[2])
			if !ok {
				return fmt.Errorf("key %q not found", args[2])
			}

			src, err := dataset.NewFileSource(args[1], samplesFormat)
			if err != nil {
				return err
			}
			rows, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}
			samples, rejections := domain.NormalizeSamples(rows, fields)
			for _, r := range rejections {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped sample %s\n", r)
			}

			sample, ok := domain.LatestSample(samples, fields.JoinKey(rec))
			if !ok {
				return fmt.Errorf("no samples for %q", rec.Key)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s at %s\n", rec.Key, sample.Timestamp.Format(time.RFC3339))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tVALUE")
			for _, name := range slices.Sorted(maps.Keys(sample.Values)) {
				fmt.Fprintf(tw, "%s\t%v\n", name, sample.Values[name])
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&fields.Key, "sample-key", fields.Key, "sample field matched against the join value")
	f.StringVar(&fields.Timestamp, "timestamp", fields.Timestamp, "sample field holding the observation time")
	f.StringVar(&fields.Join, "join", fields.Join, "record attribute joined on (empty joins on the record key)")
	f.StringVar(&samplesFormat, "samples-format", "", "samples format: csv, json or yaml (default from extension)")
	return cmd
}
