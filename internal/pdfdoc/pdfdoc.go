// Package pdfdoc loads PDF attachments into positioned-word documents using
// poppler's pdftotext bbox output.
package pdfdoc

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/document"
)

// Loader turns raw attachment bytes into a Document.
type Loader interface {
	Load(ctx context.Context, pdf []byte) (*document.Document, error)
}

// Poppler runs `pdftotext -bbox-layout` and rebuilds pages and tables from the
// word boxes it reports.
type Poppler struct {
	binPath string
	tempDir string
	layout  document.Layout
}

// NewPoppler creates a Poppler loader. If binPath is empty, "pdftotext" is used.
func NewPoppler(binPath, tempDir string) *Poppler {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &Poppler{binPath: binPath, tempDir: tempDir, layout: document.DefaultLayout}
}

// Load implements Loader.
func (p *Poppler) Load(ctx context.Context, data []byte) (*document.Document, error) {
	if len(data) == 0 {
		return nil, eris.New("pdfdoc: empty document")
	}

	expected, err := pageCount(data)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(p.tempDir, "notice-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "pdfdoc: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, eris.Wrap(err, "pdfdoc: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "pdfdoc: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-bbox-layout", "-enc", "UTF-8", tmp.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "pdfdoc: pdftotext failed: %s", stderr.String())
	}

	doc, err := ParseBBoxLayout(&stdout, p.layout)
	if err != nil {
		return nil, err
	}
	if expected != len(doc.Pages) {
		zap.L().Warn("pdfdoc: page count mismatch",
			zap.Int("pdfcpu_pages", expected),
			zap.Int("pdftotext_pages", len(doc.Pages)),
		)
	}
	return doc, nil
}

// pageCount reads the document with pdfcpu in relaxed mode. Bytes that are not
// a readable PDF are rejected here, before pdftotext is run.
func pageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, eris.Wrap(err, "pdfdoc: unreadable pdf")
	}
	if n == 0 {
		return 0, eris.New("pdfdoc: pdf has no pages")
	}
	return n, nil
}
