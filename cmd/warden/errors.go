package main

import "fmt"

// thresholdError signals that the run completed successfully but produced
// at least one finding meeting the configured fail-on severity, mapping to
// exit code 2 rather than the generic fatal-error exit code 1.
type thresholdError struct {
	count int
}

func (e *thresholdError) Error() string {
	return fmt.Sprintf("%d finding(s) met the configured fail-on threshold", e.count)
}
