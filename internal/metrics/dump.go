package metrics

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/common/expfmt"
)

// WriteText writes every gathered family whose name has the service prefix
// to w in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	mfs, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
