package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"

	"samplepipe/internal/fileutil"
	"samplepipe/internal/logging"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// CopyOutputs copies every declared output to its destination. Missing
// optional sources are skipped; every other failure is reported after all
// outputs were attempted. With modules.copy_outputs.overwrite = false,
// existing destinations are left alone.
func CopyOutputs(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
	overwrite := inv.Config.Module(CopyOutputsName).Bool("overwrite", true)
	var errs []error
	copied := 0
	for _, out := range inv.Samples.Outputs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !overwrite {
			if _, err := os.Stat(out.Dst); err == nil {
				inv.Logger.Debug("output exists, not overwriting", logging.String("dst", out.Dst))
				continue
			}
		}
		if _, err := os.Stat(out.Src); err != nil {
			if out.Optional && os.IsNotExist(err) {
				inv.Logger.Debug("optional output missing", logging.String("src", out.Src))
				continue
			}
			errs = append(errs, fmt.Errorf("output %s: %w", out.Src, err))
			continue
		}
		if err := fileutil.CopyPath(out.Src, out.Dst); err != nil {
			errs = append(errs, fmt.Errorf("copy %s to %s: %w", out.Src, out.Dst, err))
			continue
		}
		copied++
		inv.Logger.Debug("output copied", logging.String("src", out.Src), logging.String("dst", out.Dst))
	}
	inv.Logger.Info("outputs copied",
		logging.Int("copied", copied),
		logging.Int("failed", len(errs)),
		logging.String("result_dir", inv.Config.Paths.ResultDir),
	)
	return nil, errors.Join(errs...)
}
