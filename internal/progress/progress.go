// Package progress wraps terminal progress bars for the harness loops.
package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v2"
)

// Bar is a progress bar that does nothing when it has no writer or no work.
type Bar struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// New creates a bar over total items labelled desc, rendering to out.
func New(out io.Writer, total int, desc string) *Bar {
	if out == nil || total <= 0 {
		return &Bar{}
	}
	return &Bar{
		out: out,
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(desc),
		),
	}
}

// Add advances the bar by n items.
func (b *Bar) Add(n int) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

// Finish completes the bar and ends its line.
func (b *Bar) Finish() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	fmt.Fprintln(b.out)
	b.bar = nil
}
