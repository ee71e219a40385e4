package fetch

import (
	"fmt"
	"io"
)

// progressWriter counts bytes passing through it and redraws a single
// progress line after every chunk.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	prefix  string
	total   int64
	current int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.current += int64(n)
	pw.printProgress()
	return n, err
}

func (pw *progressWriter) printProgress() {
	if pw.out == nil {
		return
	}
	mb := float64(pw.current) / 1024.0 / 1024.0
	if pw.total <= 0 {
		fmt.Fprintf(pw.out, "%s%1.3f MB\r", pw.prefix, mb)
		return
	}
	pct := 100.0 * float64(pw.current) / float64(pw.total)
	fmt.Fprintf(pw.out, "%s%1.3f MB (%1.1f %%)\r", pw.prefix, mb, pct)
}

func (pw *progressWriter) finish() {
	if pw.out != nil {
		fmt.Fprintln(pw.out)
	}
}
