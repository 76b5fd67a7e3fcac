package builtin

import (
	"context"
	"os"
	"slices"
	"strings"

	"samplepipe/internal/logging"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// ValidateSamples fails samples whose files are missing or are directories,
// and warns about samples that repeat an identifier with the same files.
func ValidateSamples(_ context.Context, inv *module.Invocation) (*sample.Samples, error) {
	seen := make(map[string]bool)
	failed := 0
	for _, item := range inv.Samples.Items {
		key := item.ID + "\x00" + strings.Join(slices.Sorted(slices.Values(item.Files)), "\x00")
		if seen[key] {
			logging.WarnWithContext(inv.Logger, "duplicate sample", "duplicate_sample",
				logging.String(logging.FieldSampleID, item.ID),
				logging.Int("files", len(item.Files)),
				logging.String(logging.FieldErrorHint, "remove the repeated entry from the samples file"),
				logging.String(logging.FieldImpact, "the sample is processed twice"),
			)
		}
		seen[key] = true

		if item.IsFailed() {
			continue
		}
		var bad []string
		for _, file := range item.Files {
			info, err := os.Stat(file)
			if err != nil || info.IsDir() {
				bad = append(bad, file)
			}
		}
		if len(bad) > 0 {
			item.Fail("missing files: " + strings.Join(bad, ", "))
			failed++
			inv.Logger.Warn("sample has missing files",
				logging.String(logging.FieldSampleID, item.ID),
				logging.Any("files", bad),
			)
		}
	}
	inv.Logger.Info("samples validated",
		logging.Int("samples", inv.Samples.Len()),
		logging.Int("failed", failed),
	)
	return inv.Samples, nil
}
