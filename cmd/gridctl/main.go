// Command gridctl normalizes a dataset file offline and queries the
// resulting grid without running the service.
//
// Usage:
//
//	gridctl validate data/elements.csv
//	gridctl lookup data/elements.csv Fe
//	gridctl row data/elements.csv 2
//	gridctl export data/elements.csv --output-format yaml -o grid.yaml
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
