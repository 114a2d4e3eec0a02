package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"rxbench/internal/results"
)

const notAvailable = "N/A"

// count renders a counter as an integer, or N/A.
func count(v results.Value) string {
	n, ok := v.Get()
	if !ok {
		return notAvailable
	}
	return strconv.FormatInt(int64(n), 10)
}

// seconds renders an execution time with two decimals.
func seconds(v results.Value) string {
	n, ok := v.Get()
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%.2f s", n)
}

// memory renders a byte count in IEC units.
func memory(v results.Value) string {
	n, ok := v.Get()
	if !ok {
		return notAvailable
	}
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// megabytes renders a byte count as whole MiB, the unit of the LaTeX tables.
func megabytes(v results.Value) string {
	n, ok := v.Get()
	if !ok {
		return notAvailable
	}
	return strconv.FormatInt(int64(n/(1024*1024)), 10) + " MB"
}

func metricCells(m results.ToolMetrics) []string {
	vals := m.Values()
	cells := make([]string, len(vals))
	for i, v := range vals {
		cells[i] = count(v)
	}
	return cells
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	"_", `\_`,
	"&", `\&`,
	"%", `\%`,
	"#", `\#`,
	"$", `\$`,
	"{", `\{`,
	"}", `\}`,
)

func latexEscape(s string) string {
	return latexEscaper.Replace(s)
}
