package feed

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kart-timing/internal/logger"
)

type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) HandleLine(_ context.Context, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func testLogger() *logger.FeedLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logger.NewFeedLogger(l)
}

func testConfig(addr string) Config {
	return Config{
		Address:        addr,
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func runReader(t *testing.T, r *Reader) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestReaderDeliversLines(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, "$B,1,\"Heat 1\"\r\n\r\n$G,1,\"12\",5,\"00:03:10.500\"\n")
		time.Sleep(time.Second)
	}()

	lines := &lineCollector{}
	r := NewReader(testConfig(ln.Addr().String()), lines, testLogger())
	cancel, done := runReader(t, r)

	require.Eventually(t, func() bool { return len(lines.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`$B,1,"Heat 1"`, `$G,1,"12",5,"00:03:10.500"`}, lines.snapshot())
	assert.True(t, r.Connected())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancel")
	}
	assert.False(t, r.Connected())
}

func TestReaderReconnectsAfterDrop(t *testing.T) {
	ln := listen(t)
	go func() {
		for _, payload := range []string{"$F,first\n", "$F,second\n"} {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			io.WriteString(conn, payload)
			conn.Close()
		}
	}()

	lines := &lineCollector{}
	r := NewReader(testConfig(ln.Addr().String()), lines, testLogger())
	runReader(t, r)

	require.Eventually(t, func() bool { return len(lines.snapshot()) >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"$F,first", "$F,second"}, lines.snapshot()[:2])
}

func TestReaderTreatsSilenceAsFailure(t *testing.T) {
	ln := listen(t)
	accepted := make(chan struct{}, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case accepted <- struct{}{}:
			default:
			}
			defer conn.Close()
		}
	}()

	cfg := testConfig(ln.Addr().String())
	cfg.ReadTimeout = 50 * time.Millisecond
	r := NewReader(cfg, &lineCollector{}, testLogger())
	runReader(t, r)

	for i := 0; i < 2; i++ {
		select {
		case <-accepted:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d not attempted", i+1)
		}
	}
}

func TestReaderRetriesWhenNothingListens(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	ln.Close()

	r := NewReader(testConfig(addr), &lineCollector{}, testLogger())
	cancel, done := runReader(t, r)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, r.Connected())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancel")
	}
}

func TestReaderStop(t *testing.T) {
	r := NewReader(testConfig("127.0.0.1:1"), &lineCollector{}, testLogger())
	r.Stop()
	assert.ErrorIs(t, r.Run(context.Background()), ErrStopped)
}

func TestBackOffSchedule(t *testing.T) {
	b := newBackOff(Config{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second})

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}
