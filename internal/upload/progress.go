package upload

import (
	"context"
	"io"
)

// Progress is a snapshot of bytes handed to the transport.
type Progress struct {
	Sent  int64
	Total int64
}

// Percent returns Sent as a whole percentage of Total.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 100
	}
	return int(p.Sent * 100 / p.Total)
}

// ProgressFunc receives progress updates. It is called from the goroutine
// that performs the transfer.
type ProgressFunc func(Progress)

// progressReader reports every read and stops as soon as ctx is done.
type progressReader struct {
	ctx   context.Context
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil && p.ctx.Err() == nil {
			p.fn(Progress{Sent: p.sent, Total: p.total})
		}
	}
	return n, err
}
