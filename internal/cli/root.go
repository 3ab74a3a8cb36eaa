package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"finreport-backend/internal/analysis"
	"finreport-backend/internal/report"
)

// Settings configure reportctl. They come from flags, FINREPORT_* env vars
// and an optional config file, in that order of precedence.
type Settings struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	OutDir     string        `mapstructure:"out_dir"`
	FontFamily string        `mapstructure:"font_family"`
	FontSize   int           `mapstructure:"font_size"`
}

func (s Settings) export() report.ExportSettings {
	return report.ExportSettings{FontFamily: s.FontFamily, FontSize: s.FontSize}
}

func (s Settings) client() *analysis.Client {
	return analysis.New(analysis.Options{BaseURL: s.APIBaseURL, Timeout: s.Timeout})
}

type rootCmd struct {
	v          *viper.Viper
	configPath string
	settings   Settings
}

// NewRootCmd builds the reportctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	rc := &rootCmd{v: viper.New()}
	cmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Analyze financial spreadsheets and export MD&A reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rc.load()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&rc.configPath, "config", "", "Path to a config file (yaml, json or toml)")
	flags.String("api-url", "http://localhost:8000", "Analysis API base URL")
	flags.Duration("timeout", 120*time.Second, "Analysis request timeout")
	flags.String("out", ".", "Directory for exported files")
	flags.String("font-family", "helvetica", "PDF font family (helvetica, times, courier)")
	flags.Int("font-size", 12, "PDF base font size")

	for key, flag := range map[string]string{
		"api_base_url": "api-url",
		"timeout":      "timeout",
		"out_dir":      "out",
		"font_family":  "font-family",
		"font_size":    "font-size",
	} {
		_ = rc.v.BindPFlag(key, flags.Lookup(flag))
	}
	rc.v.SetEnvPrefix("FINREPORT")
	rc.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	rc.v.AutomaticEnv()

	cmd.AddCommand(
		newAnalyzeCmd(rc),
		newExportCmd(rc),
		newInspectCmd(rc),
		newHealthCmd(rc),
	)
	return cmd
}

func (rc *rootCmd) load() error {
	if rc.configPath != "" {
		rc.v.SetConfigFile(rc.configPath)
		if err := rc.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	var s Settings
	if err := rc.v.Unmarshal(&s); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	rc.settings = s
	return nil
}
