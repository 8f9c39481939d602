// Package progress reports how many bytes of an image have been written.
package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Writer counts the bytes written to it. Use it with io.TeeReader or
// io.MultiWriter next to the real destination.
type Writer struct {
	n uint64
}

func (w *Writer) Write(p []byte) (n int, err error) {
	atomic.AddUint64(&w.n, uint64(len(p)))
	return len(p), nil
}

// Transferred returns the number of bytes written so far.
func (w *Writer) Transferred() uint64 {
	return atomic.LoadUint64(&w.n)
}

// Reset sets the counter to zero and returns its previous value.
func (w *Writer) Reset() uint64 {
	return atomic.SwapUint64(&w.n, 0)
}

type Reporter struct {
	w        *Writer
	log      *zap.Logger
	interval time.Duration
	total    uint64

	mu     sync.Mutex
	status string
}

// NewReporter returns a Reporter logging the progress of w once per second.
func NewReporter(w *Writer, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{w: w, log: log, interval: time.Second}
}

func (p *Reporter) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *Reporter) SetTotal(total uint64) {
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) getStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// line describes the progress after transferred bytes, last of which were
// already reported one interval ago.
func (p *Reporter) line(transferred, last uint64) string {
	if transferred < last {
		// transferred was reset
		last = 0
	}
	perS := uint64(float64(transferred-last) / p.interval.Seconds())
	rate := humanize.IBytes(perS) + "/s"
	total := atomic.LoadUint64(&p.total)
	if total == 0 {
		return rate
	}
	pct := float64(transferred) / float64(total) * 100
	return fmt.Sprintf("%02.2f%% of %s, writing at %s",
		pct,
		humanize.IBytes(total),
		rate)
}

// Report logs the progress until ctx is done.
func (p *Reporter) Report(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	last := p.w.Transferred()
	for {
		select {
		case <-ticker.C:
			transferred := p.w.Transferred()
			p.log.Info(p.line(transferred, last), zap.String("status", p.getStatus()))
			last = transferred
		case <-ctx.Done():
			return
		}
	}
}
