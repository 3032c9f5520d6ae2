package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// RunAll executes every registered case in order and writes a perf-format
// JSON report to the named file. It returns an error when a case could not
// be formatted or recorded a failing trial.
func RunAll(ctx context.Context, outputFile string) error {
	var failed []string
	perf := []interface{}{}
	for _, c := range getAllCases() {
		res := c.Run(ctx)
		if res.HasErrors() {
			for _, msg := range res.errReport() {
				fmt.Println("    error:", msg)
			}
			failed = append(failed, res.Name)
			continue
		}
		metrics, err := res.PerfFormat()
		if err != nil {
			return errors.Wrapf(err, "formatting results of case %s", res.Name)
		}
		perf = append(perf, metrics...)
	}

	data, err := json.MarshalIndent(perf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling perf report")
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return errors.Wrapf(err, "writing perf report to %s", outputFile)
	}

	if len(failed) > 0 {
		return errors.Errorf("benchmark cases failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
