package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"finreport-backend/internal/chart"
	"finreport-backend/internal/extract"
	"finreport-backend/internal/report"
)

type analyzeCmd struct {
	root      *rootCmd
	withChart bool
	saveJSON  bool
	plain     bool
}

func newAnalyzeCmd(root *rootCmd) *cobra.Command {
	ac := &analyzeCmd{root: root}
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a CSV/XLS/XLSX file and export the PDF report",
		Args:  cobra.ExactArgs(1),
		RunE:  ac.run,
	}
	cmd.Flags().BoolVar(&ac.withChart, "chart", false, "Also write the chart as PNG")
	cmd.Flags().BoolVar(&ac.saveJSON, "json", false, "Also write the raw report as JSON")
	cmd.Flags().BoolVar(&ac.plain, "plain", false, "Print the narrative without terminal styling")
	return cmd
}

func (ac *analyzeCmd) run(cmd *cobra.Command, args []string) error {
	s := ac.root.settings
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	inspection, err := extract.Inspect(ctx, name, data)
	if err != nil {
		return err
	}
	if inspection.Preview != nil {
		fmt.Fprintf(out, "Columns: %s\n", strings.Join(inspection.Preview.Columns, ", "))
	}

	result, err := s.client().Analyze(ctx, name, bytes.NewReader(data))
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	for _, line := range report.MetricLines(result) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
	if err := printNarrative(out, result.MarkdownReport, ac.plain); err != nil {
		return err
	}

	doc, err := writePDF(out, s, result)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(doc.FileName, filepath.Ext(doc.FileName))

	if ac.withChart {
		png, err := chart.NewRenderer().Render(result.ChartData)
		if err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		if png == nil {
			fmt.Fprintln(out, "No chart data.")
		} else if err := writeFile(out, s.OutDir, base+".png", png); err != nil {
			return err
		}
	}
	if ac.saveJSON {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if err := writeFile(out, s.OutDir, base+".json", raw); err != nil {
			return err
		}
	}
	return nil
}

func printNarrative(out io.Writer, markdown string, plain bool) error {
	if markdown == "" {
		markdown = report.EmptyNarrative
	}
	if plain {
		_, err := fmt.Fprintln(out, markdown)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(80))
	if err != nil {
		return fmt.Errorf("narrative renderer: %w", err)
	}
	rendered, err := r.Render(markdown)
	if err != nil {
		return fmt.Errorf("render narrative: %w", err)
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func writePDF(out io.Writer, s Settings, data report.ReportData) (*report.Document, error) {
	doc, err := report.NewExporter().Export(data, s.export())
	if err != nil {
		return nil, err
	}
	if err := writeFile(out, s.OutDir, doc.FileName, doc.Bytes); err != nil {
		return nil, err
	}
	return doc, nil
}

// writeFile writes through a temp file so a failed write leaves nothing behind.
func writeFile(out io.Writer, dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".reportctl-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, errors.Join(werr, cerr))
	}
	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	fmt.Fprintf(out, "Wrote %s\n", target)
	return nil
}
