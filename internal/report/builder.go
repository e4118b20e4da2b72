package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

//go:embed report.html.tmpl
var reportTemplate string

const fileTimeLayout = "2006-01-02_15-04-05"

// Builder renders one HTML file per run. It is safe for concurrent use:
// the template is parsed once and every Build writes its own temp file.
type Builder struct {
	outputDir string
	tmpl      *template.Template
}

type row struct {
	domain.ChangeEvent
	ProductURL string
	Rate       string
}

type page struct {
	Source      string
	GeneratedAt string
	Falls       int
	Rises       int
	Rows        []row
}

func NewBuilder(outputDir string) (*Builder, error) {
	printer := message.NewPrinter(language.Japanese)

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"yen": func(v int64) string { return printer.Sprintf("¥%d", v) },
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}

	return &Builder{outputDir: outputDir, tmpl: tmpl}, nil
}

// FileName is <source>_<UTC time to the second>.html.
func FileName(source string, runAt time.Time) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, source)
	return safe + "_" + runAt.UTC().Format(fileTimeLayout) + ".html"
}

// Build writes the report and returns its path. Rows keep event order.
func (b *Builder) Build(events []domain.ChangeEvent, src domain.Source, runAt time.Time) (string, error) {
	if len(events) == 0 {
		return "", domain.ErrNoEvents
	}

	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data := page{
		Source:      src.Name,
		GeneratedAt: runAt.UTC().Format(time.RFC3339),
		Rows:        make([]row, 0, len(events)),
	}
	for _, e := range events {
		if e.Direction == domain.DirectionFall {
			data.Falls++
		} else {
			data.Rises++
		}
		data.Rows = append(data.Rows, row{
			ChangeEvent: e,
			ProductURL:  src.ProductURL(e.ProductID, e.PriceGroup),
			Rate:        e.ChangeRate().String() + "%",
		})
	}

	tmp, err := os.CreateTemp(b.outputDir, ".report-*.html")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := b.tmpl.Execute(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("render report: %w", err)
	}
	// CreateTemp makes 0600 files; the report is served over HTTP.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	path := filepath.Join(b.outputDir, FileName(src.Name, runAt))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	return path, nil
}
