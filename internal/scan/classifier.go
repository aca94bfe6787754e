package scan

import (
	"sync"
	"time"

	"github.com/noah-isme/pos-engine/internal/obs"
)

const (
	// DefaultDebounce is the quiet period that closes an input buffer.
	// Hardware scanners emit characters within single-digit milliseconds of
	// each other; a human cannot type inside this window.
	DefaultDebounce = 150 * time.Millisecond
	// DefaultMinLength is the shortest buffer accepted as a barcode.
	DefaultMinLength = 3
)

// Classifier disambiguates scanner bursts from human typing on a shared
// keyboard channel. Keystrokes accumulate into a buffer; the buffer closes on
// a quiet period, an explicit terminator (Enter) or cancel (Escape). Closed
// buffers at least MinLength long are emitted as decoded barcodes, shorter
// ones are discarded silently.
type Classifier struct {
	Debounce  time.Duration
	MinLength int

	mu      sync.Mutex
	buf     []rune
	timer   *time.Timer
	decoded chan string
	closed  bool
}

// NewClassifier constructs a classifier with the given debounce window and
// minimum barcode length; zero values select the defaults.
func NewClassifier(debounce time.Duration, minLength int) *Classifier {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Classifier{
		Debounce:  debounce,
		MinLength: minLength,
		decoded:   make(chan string, 8),
	}
}

// Decoded delivers decoded barcodes. The channel is closed by Close.
func (c *Classifier) Decoded() <-chan string { return c.decoded }

// Keystroke feeds one character into the classifier. Carriage return and
// newline act as the explicit terminator, escape as the cancel key; any other
// rune is buffered and restarts the debounce timer.
func (c *Classifier) Keystroke(r rune) {
	switch r {
	case '\r', '\n':
		c.Flush()
		return
	case 0x1b:
		c.Cancel()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.buf = append(c.buf, r)
	if c.timer == nil {
		c.timer = time.AfterFunc(c.Debounce, c.expire)
		return
	}
	c.timer.Reset(c.Debounce)
}

// Flush closes the buffer immediately, as the scanner's terminator key does.
func (c *Classifier) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked()
}

// Cancel discards the buffer without emitting.
func (c *Classifier) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.buf = nil
}

// Close cancels any pending buffer and closes the decoded channel.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopTimerLocked()
	c.buf = nil
	c.closed = true
	close(c.decoded)
}

func (c *Classifier) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked()
}

func (c *Classifier) emitLocked() {
	c.stopTimerLocked()
	if c.closed {
		return
	}
	buf := c.buf
	c.buf = nil
	if len(buf) < c.MinLength {
		if len(buf) > 0 {
			obs.ScanDiscardedTotal.Inc()
		}
		return
	}
	select {
	case c.decoded <- string(buf):
		obs.ScanDecodedTotal.Inc()
	default:
		// Consumer is not draining; dropping beats blocking the input path.
		obs.ScanDiscardedTotal.Inc()
	}
}

func (c *Classifier) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
