package executor

import "strings"

// Render formats r the way the original CLI writes to its output
// stream: a failing result is one line starting with "Error: "; a
// successful result is a header row, one line per data row (both
// joined with " | "), and a trailing counter line. UPDATE/DELETE have
// no header or rows, only the counter; INSERT and DDL render as "".
func (r Result) Render() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}

	var b strings.Builder
	if len(r.Columns) > 0 {
		b.WriteString(strings.Join(r.Columns, " | "))
		b.WriteByte('\n')
		for _, row := range r.Rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteByte('\n')
		}
	}
	if r.Counter != "" {
		b.WriteString(r.Counter)
	}
	return b.String()
}
