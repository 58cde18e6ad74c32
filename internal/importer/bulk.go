package importer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileReport is the outcome of one archive entry. Err is set when the entry
// could not be read; Report is nil then.
type FileReport struct {
	Filename  string  `json:"filename"`
	Successes int     `json:"successes"`
	Skips     int     `json:"skips"`
	Errors    int     `json:"errors"`
	Report    *Report `json:"report,omitempty"`
	Err       string  `json:"error,omitempty"`
}

// BulkReport aggregates the reports of every CSV file in an archive.
type BulkReport struct {
	Kind         string       `json:"kind"`
	Source       string       `json:"source"`
	Files        []FileReport `json:"files"`
	TotalRows    int          `json:"total_rows"`
	SuccessCount int          `json:"success_count"`
	SkipCount    int          `json:"skip_count"`
	ErrorCount   int          `json:"error_count"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// HasErrors reports whether any row of any file failed or a file was
// unreadable.
func (b *BulkReport) HasErrors() bool {
	if b.ErrorCount > 0 {
		return true
	}
	for _, f := range b.Files {
		if f.Err != "" {
			return true
		}
	}
	return false
}

func (b *BulkReport) add(name string, r *Report, err error) {
	f := FileReport{Filename: name, Report: r}
	if err != nil {
		f.Err = err.Error()
	}
	if r != nil {
		f.Successes, f.Skips, f.Errors = r.SuccessCount, r.SkipCount, r.ErrorCount
		b.TotalRows += r.TotalRows
		b.SuccessCount += r.SuccessCount
		b.SkipCount += r.SkipCount
		b.ErrorCount += r.ErrorCount
	}
	b.Files = append(b.Files, f)
}

// Errors returns every row error across files, prefixed with the file name.
func (b *BulkReport) Errors() []Entry {
	var out []Entry
	for _, f := range b.Files {
		if f.Err != "" {
			out = append(out, Entry{Message: f.Filename + ": " + f.Err, Kind: KindSourceRead.String()})
		}
		if f.Report == nil {
			continue
		}
		for _, e := range f.Report.Errors {
			e.Message = f.Filename + ": " + e.Message
			out = append(out, e)
		}
	}
	return out
}

// ErrorPreview behaves like Report.ErrorPreview over all files.
func (b *BulkReport) ErrorPreview(limit int) []string {
	return previewLines(b.Errors(), limit)
}

// Summary renders per-file counts followed by the grand totals.
func (b *BulkReport) Summary() string {
	return b.SummaryN(-1)
}

// SummaryN is Summary followed by the error preview for limit. A negative
// limit omits the error list.
func (b *BulkReport) SummaryN(limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Bulk import of %s from %s (%d files)\n", b.Kind, b.Source, len(b.Files))
	for _, f := range b.Files {
		if f.Err != "" {
			fmt.Fprintf(&sb, "  %s: unreadable: %s\n", f.Filename, f.Err)
			continue
		}
		fmt.Fprintf(&sb, "  %s: %d imported, %d skipped, %d errors\n", f.Filename, f.Successes, f.Skips, f.Errors)
	}
	sb.WriteString("\n")
	writeCounts(&sb, b.TotalRows, b.SuccessCount, b.SkipCount, b.ErrorCount)
	if limit >= 0 {
		writeErrors(&sb, b.ErrorPreview(limit))
	}
	return sb.String()
}

// ProcessArchive imports every CSV file of the zip archive at path.
func (p *Processor) ProcessArchive(ctx context.Context, archivePath string) (*BulkReport, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, sourceError("open archive "+archivePath, err)
	}
	defer zr.Close()
	return p.processZip(ctx, filepath.Base(archivePath), &zr.Reader)
}

// ProcessArchiveReader imports every CSV file of a zip archive held in r.
func (p *Processor) ProcessArchiveReader(ctx context.Context, name string, r io.ReaderAt, size int64) (*BulkReport, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, sourceError("open archive "+name, err)
	}
	return p.processZip(ctx, name, zr)
}

func (p *Processor) processZip(ctx context.Context, name string, zr *zip.Reader) (*BulkReport, error) {
	var entries []*zip.File
	for _, f := range zr.File {
		if isCSVEntry(f) {
			entries = append(entries, f)
		}
	}
	if len(entries) == 0 {
		return nil, sourceError("open archive "+name, ErrNoCSVEntries)
	}

	bulk := &BulkReport{Kind: p.handler.Kind(), Source: name, StartedAt: time.Now()}
	for _, f := range entries {
		report, err := p.processEntry(ctx, f)
		if err != nil && !IsFatal(err) {
			// cancellation
			bulk.FinishedAt = time.Now()
			return bulk, err
		}
		bulk.add(f.Name, report, err)
	}
	bulk.FinishedAt = time.Now()

	p.logger.Info("archive import finished",
		"source", name,
		"files", len(bulk.Files),
		"total_rows", bulk.TotalRows,
		"error_count", bulk.ErrorCount,
	)
	return bulk, nil
}

func (p *Processor) processEntry(ctx context.Context, f *zip.File) (*Report, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, p.sourceFailed(sourceError("open "+f.Name, err))
	}
	defer rc.Close()
	return p.ProcessSource(ctx, f.Name, rc)
}

// isCSVEntry skips directories, macOS resource forks and hidden files.
func isCSVEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	name := f.Name
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(path.Ext(base), ".csv")
}
