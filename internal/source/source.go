// Package source loads raw offer listings from local files, HTTP(S) and FTP
// servers. Spreadsheets are flattened to tab-separated lines.
package source

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/offers-cli/internal/offer"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Options configures a Loader.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RateLimit  rate.Limit // requests per second per host
	Sheet      string     // spreadsheet sheet name; first sheet when empty
}

// Loader resolves a location to listing text.
type Loader struct {
	http  *HTTPFetcher
	ftp   *FTPFetcher
	sheet string
}

// NewLoader creates a Loader with the given options.
func NewLoader(opts Options) *Loader {
	return &Loader{
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
			RateLimit:  opts.RateLimit,
		}),
		ftp:   NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
		sheet: opts.Sheet,
	}
}

// Load fetches location (a file path, http(s):// or ftp:// URL) and returns
// its content as UTF-8 listing text.
func (l *Loader) Load(ctx context.Context, location string) (string, error) {
	raw, contentType, err := l.fetch(ctx, location)
	if err != nil {
		return "", err
	}

	zap.L().Debug("source: loaded",
		zap.String("location", location),
		zap.Int("bytes", len(raw)),
		zap.String("content_type", contentType),
	)

	if isSpreadsheet(location, contentType) {
		return XLSXToText(raw, l.sheet)
	}

	text, err := offer.DecodeText(raw, offer.CharsetFromContentType(contentType))
	if err != nil {
		return "", eris.Wrapf(err, "source: decode %s", location)
	}
	return text, nil
}

func (l *Loader) fetch(ctx context.Context, location string) ([]byte, string, error) {
	switch scheme(location) {
	case "http", "https":
		return l.http.Fetch(ctx, location)
	case "ftp":
		rc, err := l.ftp.Download(ctx, location)
		if err != nil {
			return nil, "", err
		}
		defer rc.Close() //nolint:errcheck
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, "", eris.Wrapf(err, "source: read %s", location)
		}
		return data, "", nil
	default:
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, "", eris.Wrapf(err, "source: read file %s", location)
		}
		return data, "", nil
	}
}

func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func isSpreadsheet(location, contentType string) bool {
	if strings.HasPrefix(contentType, xlsxContentType) {
		return true
	}
	p := location
	if scheme(location) != "" {
		if u, err := url.Parse(location); err == nil {
			p = u.Path
		}
	}
	return strings.EqualFold(path.Ext(p), ".xlsx")
}
