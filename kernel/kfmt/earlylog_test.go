package kfmt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEarlyLog(t *testing.T) {
	t.Run("replay", func(t *testing.T) {
		var (
			l   earlyLog
			buf bytes.Buffer
		)

		l.Write([]byte("[kmain] kernel heap "))
		l.Write([]byte("at 0x400000\n"))

		if _, err := l.WriteTo(&buf); err != nil {
			t.Fatal(err)
		}
		if exp, got := "[kmain] kernel heap at 0x400000\n", buf.String(); got != exp {
			t.Fatalf("expected %q; got %q", exp, got)
		}

		buf.Reset()
		l.WriteTo(&buf)
		if buf.Len() != 0 {
			t.Fatalf("expected replay to empty the log; got %q", buf.String())
		}
	})

	t.Run("wrap", func(t *testing.T) {
		var (
			l   earlyLog
			buf bytes.Buffer
		)

		// Leave the oldest byte near the end of the backing array so
		// that the held bytes straddle it.
		l.Write(bytes.Repeat([]byte{'x'}, earlyLogSize-3))
		l.WriteTo(&buf)
		buf.Reset()

		l.Write([]byte("wrapped line"))
		if l.head != earlyLogSize-3 {
			t.Fatalf("expected head at %d; got %d", earlyLogSize-3, l.head)
		}
		l.WriteTo(&buf)
		if exp, got := "wrapped line", buf.String(); got != exp {
			t.Fatalf("expected %q; got %q", exp, got)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		var (
			l   earlyLog
			buf bytes.Buffer
		)

		l.Write(bytes.Repeat([]byte{'a'}, earlyLogSize))
		l.Write([]byte("tail"))

		l.WriteTo(&buf)
		out := buf.String()

		exp := "[kfmt] early log overflow; 4 bytes lost\n"
		if !strings.HasPrefix(out, exp) {
			t.Fatalf("expected output to start with %q; got %q", exp, out[:len(exp)])
		}
		if out = out[len(exp):]; len(out) != earlyLogSize || !strings.HasSuffix(out, "tail") {
			t.Fatalf("expected the last %d bytes ending in \"tail\"; got %d bytes", earlyLogSize, len(out))
		}
		if l.dropped != 0 {
			t.Fatal("expected replay to reset the overflow counter")
		}
	})

	t.Run("sink error", func(t *testing.T) {
		var l earlyLog
		l.Write([]byte("keep"))

		w := &failingWriter{limit: 2}
		if n, err := l.WriteTo(w); err == nil || n != 2 {
			t.Fatalf("expected a short write error after 2 bytes; got %d, %v", n, err)
		}

		var buf bytes.Buffer
		l.WriteTo(&buf)
		if exp, got := "ep", buf.String(); got != exp {
			t.Fatalf("expected the unwritten bytes %q to be kept; got %q", exp, got)
		}
	})
}

type failingWriter struct {
	limit int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		return w.limit, errors.New("short write")
	}
	return len(p), nil
}
