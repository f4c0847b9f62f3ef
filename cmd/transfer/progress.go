package transfer

import (
	"io"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/schollz/progressbar/v3"
)

const barWidth = 20

// progressBar renders sshutils progress reports as a terminal bar. The bar is created
// on the first report because only then is the file size known.
type progressBar struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

func newProgressBar(w io.Writer, description string) *progressBar {
	return &progressBar{w: w, description: description}
}

func (p *progressBar) Report(pr sshutils.Progress) {
	if p.bar == nil {
		if pr.Total <= 0 {
			return
		}
		p.bar = progressbar.NewOptions64(pr.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetWidth(barWidth),
			progressbar.OptionSetDescription(p.description),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				_, _ = io.WriteString(p.w, "\n")
			}),
		)
	}
	if pr.Done {
		_ = p.bar.Finish()
		return
	}
	_ = p.bar.Set64(pr.Sent)
}

// discardProgress keeps transfers quiet; the session would otherwise log every percent.
func discardProgress(sshutils.Progress) {}
