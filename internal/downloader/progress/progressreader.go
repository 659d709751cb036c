// Package progress reports how far a stream has been consumed.
package progress

import "io"

// Reader wraps an io.Reader and calls OnProgress every interval bytes and once more at EOF.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	read       int64
	sinceLast  int64
	onProgress func(read, total int64)
}

// NewReader wraps r. total is the expected size, 0 when unknown.
func NewReader(r io.Reader, total, interval int64, onProgress func(read, total int64)) *Reader {
	return &Reader{
		r:          r,
		total:      total,
		interval:   max(interval, 1),
		onProgress: onProgress,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)
	}

	if pr.sinceLast >= pr.interval || (err == io.EOF && pr.sinceLast > 0) {
		pr.onProgress(pr.read, pr.total)
		pr.sinceLast = 0
	}

	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}
