package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"mediagrab/internal/models"
)

const progressBarWidth = 30

// progressPrinter redraws one line on terminals and prints one line per
// change otherwise.
type progressPrinter struct {
	w       io.Writer
	redraw  bool
	last    string
	lastLen int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, redraw: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) update(job models.DownloadJob) {
	line := formatProgress(job)
	if line == p.last {
		return
	}
	p.last = line
	if !p.redraw {
		fmt.Fprintln(p.w, line)
		return
	}
	pad := ""
	if n := p.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.lastLen = len(line)
	fmt.Fprint(p.w, "\r"+line+pad)
}

func (p *progressPrinter) done() {
	if p.redraw && p.last != "" {
		fmt.Fprintln(p.w)
	}
}

func formatProgress(job models.DownloadJob) string {
	pct := job.Percent
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * progressBarWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled)
	return fmt.Sprintf("[%s] %5.1f%% %s", bar, pct, job.Message)
}
