// Command invoice-cli runs a document's pages through the extraction pipeline
// and stores the results, optionally writing them to a CSV or XLSX file.
//
//	invoice-cli [flags] <document> [output.csv|output.xlsx]
//
// Exit status is 0 on success and 1 on any fatal error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/garyjia/invoice-vision/internal/application/service"
	"github.com/garyjia/invoice-vision/internal/config"
	"github.com/garyjia/invoice-vision/internal/container"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/infrastructure/document"
	"github.com/garyjia/invoice-vision/internal/infrastructure/export"
	"github.com/garyjia/invoice-vision/pkg/utils"
)

type options struct {
	configPath string
	envFile    string
	owner      string
	model      string
	debug      bool
	verbose    bool
	input      string
	output     string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invoice-cli: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "invoice-cli: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("invoice-cli", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file (default: search ./configs and .)")
	fs.StringVar(&opts.envFile, "env", ".env", "optional secrets file")
	fs.StringVar(&opts.owner, "owner", "cli", "owner identity the records are stored under")
	fs.StringVar(&opts.model, "model", "", "vision model override")
	fs.BoolVar(&opts.debug, "debug", false, "print the endpoint trail of every page")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging on stderr")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: invoice-cli [flags] <document> [output.csv|output.xlsx]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch fs.NArg() {
	case 1:
		opts.input = fs.Arg(0)
	case 2:
		opts.input, opts.output = fs.Arg(0), fs.Arg(1)
	default:
		fs.Usage()
		return nil, errors.New("expected a document path and an optional output path")
	}
	return opts, nil
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	if _, err := os.Stat(opts.input); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if !document.IsSupported(opts.input) {
		return fmt.Errorf("unsupported input type %q", filepath.Ext(opts.input))
	}

	var exportFormat string
	if opts.output != "" {
		exportFormat = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.output)), ".")
		if _, ok := export.Formats()[exportFormat]; !ok {
			return fmt.Errorf("unsupported output type %q, use .csv or .xlsx", filepath.Ext(opts.output))
		}
	}

	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.VisionAPIKey()) == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY (or OPENAI_API_KEY for the openai provider) or add it to %s",
			entity.ErrMissingAPIKey, opts.envFile)
	}

	logger, err := utils.NewCLILogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	app, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Close()

	pages, err := app.Renderer().Pages(ctx, opts.input)
	if err != nil {
		return err
	}

	base := filepath.Base(opts.input)
	items := make([]service.BatchItem, 0, len(pages))
	for _, p := range pages {
		name := base
		if len(pages) > 1 {
			name = fmt.Sprintf("%s#page%d", base, p.Number)
		}
		items = append(items, service.BatchItem{FileName: name, Image: p.Image})
	}

	sess := app.Sessions().Get(opts.owner)
	sess.SetDebug(opts.debug)

	result, err := app.Services().Ingest.IngestBatch(ctx, service.BatchRequest{
		Owner:    opts.owner,
		Items:    items,
		Model:    opts.model,
		Session:  sess,
		Progress: func(r service.ItemResult) { printItem(stdout, r) },
	})
	if result != nil {
		fmt.Fprintf(stdout, "%d succeeded, %d failed\n", result.Succeeded, result.Failed)
		if result.Degraded {
			fmt.Fprintln(stdout, "warning: some records could not be saved and exist only in this run's output")
		}
	}
	if err != nil {
		return err
	}

	if exportFormat != "" {
		if err := writeExport(opts.output, exportFormat, result); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", opts.output)
	}

	if result.Succeeded == 0 && result.Failed > 0 {
		return errors.New("no page could be processed")
	}
	return nil
}

func printItem(w io.Writer, r service.ItemResult) {
	switch r.Outcome {
	case service.OutcomeStored, service.OutcomeHeld:
		rec := r.Record
		fmt.Fprintf(w, "[%d] %s: %s %s %s total=%.2f %s\n",
			r.Index+1, r.FileName, rec.Date, rec.InvoiceNumber, rec.SellerName, rec.Total, rec.CompletenessStatus)
		if r.Outcome == service.OutcomeHeld {
			fmt.Fprintf(w, "    %s\n", r.Message)
		}
	default:
		fmt.Fprintf(w, "[%d] %s\n", r.Index+1, r.Message)
	}
	for _, line := range r.Trail {
		fmt.Fprintf(w, "    trail: %s\n", line)
	}
}

// writeExport writes the records this run produced, held ones included
func writeExport(path, format string, result *service.BatchResult) error {
	var records []entity.InvoiceRecord
	for _, item := range result.Items {
		if item.Outcome == service.OutcomeStored || item.Outcome == service.OutcomeHeld {
			records = append(records, *item.Record)
		}
	}

	data, err := export.Formats()[format].Export(records)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", format, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
