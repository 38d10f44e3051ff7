// Package ocr extracts candidate field values from scanned documents.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfix/internal/config"
	"github.com/sells-group/docfix/internal/model"
)

// Extractor pulls raw field candidates of the requested kinds out of a
// scanned document.
type Extractor interface {
	ExtractFields(ctx context.Context, doc model.Document, kinds []model.FieldKind) ([]model.ExtractedField, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath, cfg.Languages), nil
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, eris.New("ocr: remote provider requires remote_url")
		}
		return NewRemoteOCR(cfg.RemoteURL, cfg.RemoteKey), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
