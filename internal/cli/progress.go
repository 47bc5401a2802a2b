package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// SyncProgress renders a progress bar across the credentials of a batch sync.
type SyncProgress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	failed int
}

// NewSyncProgress creates a progress reporter writing to w.
func NewSyncProgress(w io.Writer) *SyncProgress {
	return &SyncProgress{writer: w}
}

// Update advances the bar to done of total. The bar is created on the first call
// since the total is only known once the batch has listed its credentials.
func (p *SyncProgress) Update(done, total int, ok bool) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]Syncing credentials...[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprintln(p.writer); err != nil {
					slog.Warn("Failed to write newline after progress bar", "error", err)
				}
			}),
		)
	}

	if !ok {
		p.failed++
		p.bar.Describe(fmt.Sprintf("[cyan][bold]Syncing credentials...[reset] [red](%d failed)[reset]", p.failed))
	}

	if err := p.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Failed returns how many credentials reported failure.
func (p *SyncProgress) Failed() int {
	return p.failed
}
