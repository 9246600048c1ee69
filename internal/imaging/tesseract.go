package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultLanguages are the tesseract language packs used for notes
const DefaultLanguages = "chi_sim+eng"

// Tesseract runs the tesseract command-line tool
type Tesseract struct {
	Path string // Binary path, "tesseract" from PATH when empty
}

// RecognizeText pipes image through tesseract and returns the recognized text
func (t Tesseract) RecognizeText(ctx context.Context, image []byte, langs string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image")
	}
	bin := t.Path
	if bin == "" {
		bin = "tesseract"
	}
	if langs == "" {
		langs = DefaultLanguages
	}

	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "-l", langs)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("tesseract: %w: %s", err, msg)
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Available reports whether the tesseract binary can be found
func (t Tesseract) Available() bool {
	bin := t.Path
	if bin == "" {
		bin = "tesseract"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}
