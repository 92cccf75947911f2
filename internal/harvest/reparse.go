package harvest

import (
	"fmt"

	"github.com/kalambet/devharvest/internal/dataset"
)

// ReparseStats counts what Reparse read and wrote.
type ReparseStats struct {
	Records int
	Skipped int
	Pairs   int
}

// Reparse runs the parser again over a saved full record file and writes the
// resulting fine-tune examples to outPath. Records without a successful reply
// are counted as skipped.
func Reparse(recordsPath, outPath string) (ReparseStats, error) {
	var st ReparseStats
	w, err := dataset.Create[dataset.Example](outPath)
	if err != nil {
		return st, err
	}
	defer w.Close()

	for rec, err := range dataset.Read[dataset.FullRecord](recordsPath) {
		if err != nil {
			return st, fmt.Errorf("reading %s: %w", recordsPath, err)
		}
		st.Records++
		if _, ok := rec.Reply(); !ok {
			st.Skipped++
			continue
		}
		for _, ex := range dataset.Examples(rec) {
			if err := w.Append(ex); err != nil {
				return st, err
			}
			st.Pairs++
		}
	}
	return st, w.Close()
}
