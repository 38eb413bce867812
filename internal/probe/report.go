//go:build linux

package probe

import (
	"bytes"
	"fmt"

	"github.com/natefinch/atomic"
)

// WriteReport writes the report to path as indented JSON, atomically:
// the file either holds the complete previous report or the complete
// new one, never a partial write.
func WriteReport(path string, report Report) error {
	data, err := MarshalReport(report)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
