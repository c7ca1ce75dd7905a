package diffview

import (
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedViewer renders a classic unified diff to a writer. It stands in
// for the host comparison view when the bridge runs headless.
type UnifiedViewer struct {
	Out     io.Writer
	Context int
}

// ShowDiff reads both artifacts and writes a unified diff under a title
// header.
func (v *UnifiedViewer) ShowDiff(originalPath, modifiedPath, title string) error {
	original, err := os.ReadFile(originalPath)
	if err != nil {
		return fmt.Errorf("failed to read original: %w", err)
	}
	modified, err := os.ReadFile(modifiedPath)
	if err != nil {
		return fmt.Errorf("failed to read modified: %w", err)
	}

	ctx := v.Context
	if ctx <= 0 {
		ctx = 3
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(string(modified)),
		FromFile: "a/" + title,
		ToFile:   "b/" + title,
		Context:  ctx,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Errorf("failed to build unified diff: %w", err)
	}

	if _, err := fmt.Fprintf(v.Out, "=== %s ===\n%s", title, text); err != nil {
		return fmt.Errorf("failed to write diff: %w", err)
	}
	return nil
}
