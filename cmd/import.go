package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/offers-cli/internal/ingest"
	"github.com/sells-group/offers-cli/internal/source"
)

var (
	importSource string
	importSheet  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an offer listing from a file, HTTP(S) or FTP location",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loader := source.NewLoader(source.Options{
			UserAgent:  cfg.Source.UserAgent,
			Timeout:    time.Duration(cfg.Source.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Source.MaxRetries,
			Sheet:      importSheet,
		})

		res, err := runImport(ctx, ingest.NewIngester(st), loader, importSource)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d offer records processed\n", res.Written)
		return nil
	},
}

type listingLoader interface {
	Load(ctx context.Context, location string) (string, error)
}

type listingIngester interface {
	Ingest(ctx context.Context, source, text string) (*ingest.Result, error)
}

// runImport loads the listing at location and ingests it.
func runImport(ctx context.Context, ing listingIngester, ld listingLoader, location string) (*ingest.Result, error) {
	text, err := ld.Load(ctx, location)
	if err != nil {
		return nil, eris.Wrap(err, "import: load listing")
	}

	res, err := ing.Ingest(ctx, location, text)
	if err != nil {
		return nil, eris.Wrap(err, "import: ingest listing")
	}

	zap.L().Info("import complete",
		zap.String("source", location),
		zap.Int("parsed", res.Parsed),
		zap.Int64("written", res.Written),
	)
	return res, nil
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "listing file path or http(s)/ftp URL (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name for .xlsx listings (default first sheet)")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}
