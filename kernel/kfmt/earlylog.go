package kfmt

import "io"

// earlyLogSize bounds the output kept before an output sink is attached.
// Everything Boot prints up to hardware detection fits with room to spare.
const earlyLogSize = 4096

// earlyLog keeps the most recent bytes written to it. Once full, each new
// byte overwrites the oldest one.
type earlyLog struct {
	buf [earlyLogSize]byte

	// head is the index of the oldest byte and n the number of bytes held.
	head, n int

	// dropped counts the bytes overwritten since the last WriteTo.
	dropped uint32
}

// Write appends p to the log. It never fails.
func (l *earlyLog) Write(p []byte) (int, error) {
	for _, b := range p {
		tail := l.head + l.n
		if tail >= earlyLogSize {
			tail -= earlyLogSize
		}
		l.buf[tail] = b

		if l.n < earlyLogSize {
			l.n++
			continue
		}

		l.head++
		if l.head == earlyLogSize {
			l.head = 0
		}
		l.dropped++
	}

	return len(p), nil
}

// WriteTo sends the held bytes to w, oldest first, and empties the log. If
// the log overflowed, a line reporting the number of lost bytes precedes
// the replayed output.
func (l *earlyLog) WriteTo(w io.Writer) (int64, error) {
	if l.dropped != 0 {
		Fprintf(w, "[kfmt] early log overflow; %d bytes lost\n", l.dropped)
	}

	var written int64
	for l.n > 0 {
		end := l.head + l.n
		if end > earlyLogSize {
			end = earlyLogSize
		}

		wrote, err := w.Write(l.buf[l.head:end])
		written += int64(wrote)
		l.head += wrote
		l.n -= wrote
		if l.head == earlyLogSize {
			l.head = 0
		}

		if err != nil {
			return written, err
		}
	}

	l.dropped = 0
	return written, nil
}
