package ocr

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/validate"
)

// Tesseract extracts text from scans using the tesseract CLI tool.
type Tesseract struct {
	binPath   string
	languages string
	validator *validate.Validator
}

// NewTesseract creates a Tesseract extractor. If binPath is empty,
// "tesseract" is used; if languages is empty, "rus+eng".
func NewTesseract(binPath, languages string) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	if languages == "" {
		languages = "rus+eng"
	}
	return &Tesseract{binPath: binPath, languages: languages, validator: validate.New()}
}

// ExtractFields runs tesseract on the document and scans the recognized
// text for candidate values of the requested kinds. Shapeless kinds have no
// search pattern and produce no candidates here.
func (t *Tesseract) ExtractFields(ctx context.Context, doc model.Document, kinds []model.FieldKind) ([]model.ExtractedField, error) {
	text, err := t.recognize(ctx, doc.Path)
	if err != nil {
		return nil, err
	}
	return locateFields(t.validator, text, kinds), nil
}

// recognize runs tesseract <path> stdout and returns the recognized text.
func (t *Tesseract) recognize(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, t.binPath, path, "stdout", "-l", t.languages)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract failed for %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}

// locateFields turns recognized text into field candidates using the shape
// search patterns. Duplicate hits for the same (kind, value) collapse.
func locateFields(v *validate.Validator, text string, kinds []model.FieldKind) []model.ExtractedField {
	seen := make(map[model.FieldKind]map[string]bool)
	var out []model.ExtractedField

	for _, kind := range kinds {
		for _, m := range v.FindAll(kind, text) {
			if seen[kind] == nil {
				seen[kind] = make(map[string]bool)
			}
			if seen[kind][m.Value] {
				continue
			}
			seen[kind][m.Value] = true
			out = append(out, model.ExtractedField{Kind: kind, RawText: m.Value})
		}
	}
	return out
}
