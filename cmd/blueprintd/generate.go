package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/blueprintd/internal/config"
	"github.com/fyrsmithlabs/blueprintd/internal/genai"
	"github.com/fyrsmithlabs/blueprintd/internal/logging"
	"github.com/fyrsmithlabs/blueprintd/internal/pipeline"
	"github.com/fyrsmithlabs/blueprintd/internal/telemetry"
)

var (
	imagePaths []string
	outDir     string
	jsonOutput bool
	ledgerPath string
	concurrent bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Run the full generation pipeline on a requirements document",
	Long: `Run the full generation pipeline on a business requirements document.

Reads the document from a file or stdin and writes the generated artifacts
(plan.md, trd.md, hld.mmd, lld.mmd, backlog.json) to the output directory.

Examples:
  # Generate from a file
  blueprintd generate requirements.txt

  # Generate from stdin with supplementary diagrams
  cat requirements.txt | blueprintd generate - --image floorplan.png

  # Print the full result as JSON and export the token ledger
  blueprintd generate requirements.txt --json --ledger tokens.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringArrayVar(&imagePaths, "image", nil, "supplementary image file (repeatable)")
	generateCmd.Flags().StringVar(&outDir, "out", "blueprintd-out", "directory for generated artifacts")
	generateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full result as JSON to stdout")
	generateCmd.Flags().StringVar(&ledgerPath, "ledger", "", "write the token ledger JSON to this path")
	generateCmd.Flags().BoolVar(&concurrent, "concurrent", false, "run diagram and backlog stages in parallel")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if concurrent {
		cfg.Pipeline.Concurrent = true
	}

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	requirements, err := readRequirements(args)
	if err != nil {
		return err
	}
	images, err := readImages(imagePaths)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		logger.Warn(ctx, "telemetry setup failed, continuing without export", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}()

	ledger := genai.NewLedger()
	client := genai.NewClient(cfg.GenAI, logger, ledger)
	orch, err := pipeline.New(client, ledger, logger, cfg.Pipeline)
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, pipeline.Input{
		Requirements: requirements,
		Images:       images,
	})
	if err != nil {
		return err
	}

	if err := writeArtifacts(outDir, result); err != nil {
		return err
	}
	if ledgerPath != "" {
		if err := writeLedger(ledgerPath, ledger); err != nil {
			return err
		}
	}
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	}

	logger.Info(ctx, "generation finished",
		zap.String("run_id", result.RunID),
		zap.String("summary", result.Summary()),
		zap.Int("tokens_used", result.TokensUsed),
		zap.String("out_dir", outDir),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d tokens)\n", result.Summary(), result.TokensUsed)
	return nil
}

// telemetryConfig converts the mirrored config section into the telemetry
// package's own Config, layering file values over its defaults.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.ServiceName = cfg.Telemetry.ServiceName
	if cfg.Telemetry.ServiceVersion != "" {
		tc.ServiceVersion = cfg.Telemetry.ServiceVersion
	}
	tc.Insecure = cfg.Telemetry.Insecure
	tc.SampleRate = cfg.Telemetry.SampleRate
	tc.MetricInterval = cfg.Telemetry.MetricInterval
	tc.ShutdownGrace = cfg.Telemetry.ShutdownGrace
	return tc
}

func readRequirements(args []string) (string, error) {
	var content []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read requirements file: %w", err)
		}
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("requirements document is empty")
	}
	return text, nil
}

func readImages(paths []string) ([]pipeline.ImageInput, error) {
	var images []pipeline.ImageInput
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", path, err)
		}
		images = append(images, pipeline.ImageInput{
			Name:     filepath.Base(path),
			MIMEType: detectMIME(path, data),
			Data:     data,
		})
	}
	return images, nil
}

// detectMIME prefers the file extension and falls back to content sniffing.
func detectMIME(path string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

func writeArtifacts(dir string, result *pipeline.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	backlogJSON, err := json.MarshalIndent(result.Backlog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backlog: %w", err)
	}

	files := map[string][]byte{
		"plan.md":      []byte(result.Plan),
		"trd.md":       []byte(result.TRD),
		"hld.mmd":      []byte(result.HLD.Mermaid),
		"lld.mmd":      []byte(result.LLD.Mermaid),
		"backlog.json": backlogJSON,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func writeLedger(path string, ledger *genai.Ledger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer f.Close()
	if err := ledger.WriteJSON(f); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
