package scan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-engine/internal/scan"
)

const testDebounce = 40 * time.Millisecond

func collect(t *testing.T, c *scan.Classifier, wait time.Duration) []string {
	t.Helper()
	deadline := time.After(wait)
	var out []string
	for {
		select {
		case code, ok := <-c.Decoded():
			if !ok {
				return out
			}
			out = append(out, code)
		case <-deadline:
			return out
		}
	}
}

func TestBurstEmitsSingleBarcode(t *testing.T) {
	c := scan.NewClassifier(testDebounce, 3)
	defer c.Close()

	for _, r := range "89931111" {
		c.Keystroke(r)
		time.Sleep(2 * time.Millisecond)
	}

	codes := collect(t, c, 3*testDebounce)
	require.Equal(t, []string{"89931111"}, codes)
}

func TestSingleKeystrokeEmitsNothing(t *testing.T) {
	c := scan.NewClassifier(testDebounce, 3)
	defer c.Close()

	c.Keystroke('a')
	codes := collect(t, c, 3*testDebounce)
	require.Empty(t, codes)
}

func TestTerminatorClosesBufferImmediately(t *testing.T) {
	c := scan.NewClassifier(time.Minute, 3)
	defer c.Close()

	for _, r := range "4719512" {
		c.Keystroke(r)
	}
	c.Keystroke('\n')

	codes := collect(t, c, 50*time.Millisecond)
	require.Equal(t, []string{"4719512"}, codes)
}

func TestEscapeDiscardsBuffer(t *testing.T) {
	c := scan.NewClassifier(testDebounce, 3)
	defer c.Close()

	for _, r := range "4719512" {
		c.Keystroke(r)
	}
	c.Keystroke(0x1b)

	codes := collect(t, c, 3*testDebounce)
	require.Empty(t, codes)
}

func TestShortBufferDiscardedOnTerminator(t *testing.T) {
	c := scan.NewClassifier(testDebounce, 3)
	defer c.Close()

	c.Keystroke('o')
	c.Keystroke('k')
	c.Keystroke('\n')

	codes := collect(t, c, 3*testDebounce)
	require.Empty(t, codes)
}

func TestSeparateBurstsEmitSeparately(t *testing.T) {
	c := scan.NewClassifier(testDebounce, 3)
	defer c.Close()

	for _, r := range "111222" {
		c.Keystroke(r)
	}
	time.Sleep(3 * testDebounce)
	for _, r := range "333444" {
		c.Keystroke(r)
	}
	time.Sleep(3 * testDebounce)

	codes := collect(t, c, testDebounce)
	require.Equal(t, []string{"111222", "333444"}, codes)
}

func TestKeystrokeAfterCloseIsIgnored(t *testing.T) {
	c := scan.NewClassifier(testDebounce, 3)
	c.Close()
	c.Keystroke('x')
	c.Flush()

	_, ok := <-c.Decoded()
	require.False(t, ok)
}
