package ipc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/libevdi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	mu      sync.Mutex
	stats   []display.Stats
	stopped int
	stopErr error
}

func (m *mockHandler) Status() []display.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *mockHandler) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
	return m.stopErr
}

func (m *mockHandler) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *mockHandler) failStop(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

func sampleStats() []display.Stats {
	return []display.Stats{
		{
			Index: 0, Name: "left",
			Mode:      libevdi.ModeChangedEvent{Width: 2560, Height: 1440, BitsPerPixel: 32, RefreshRate: 60, PixelFormat: 0x34325241},
			Power:     libevdi.DPMSOn,
			CRTCState: 1,
			CursorX:   -12, CursorY: 400, Cursor: true,
			Frames: 1200, Rects: 3400, Events: 1300, Dropped: 2,
			LastEvent: time.Unix(1700000000, 123),
		},
		{Index: 1, Name: "right", Power: libevdi.DPMSOff},
	}
}

func startServer(t *testing.T, h Handler) (*SocketServer, *Client) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openvd.sock")

	server, err := NewSocketServer(path, h)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	client, err := NewClient(path)
	require.NoError(t, err)
	client.SetTimeout(time.Second)
	return server, client
}

func TestMessageEncoding(t *testing.T) {
	msg := Message{Type: MessageStatusResponse, Displays: sampleStats()}

	var buf bytes.Buffer
	require.NoError(t, writeMessage(&buf, msg))
	got, err := readMessage(&buf)
	require.NoError(t, err)

	assert.Equal(t, MessageStatusResponse, got.Type)
	require.Len(t, got.Displays, 2)
	want := sampleStats()
	assert.True(t, want[0].LastEvent.Equal(got.Displays[0].LastEvent))
	want[0].LastEvent, got.Displays[0].LastEvent = time.Time{}, time.Time{}
	assert.Equal(t, want, got.Displays)
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := Unmarshal(nil)
	assert.ErrorContains(t, err, "no type")

	_, err = Unmarshal([]byte{0x08})
	assert.Error(t, err, "truncated varint")

	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err = readMessage(&buf)
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestSocketServerStartStop(t *testing.T) {
	server, _ := startServer(t, &mockHandler{})

	info, err := os.Stat(server.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Start is idempotent
	require.NoError(t, server.Start())

	server.Stop()
	_, err = os.Stat(server.Path())
	assert.True(t, os.IsNotExist(err), "socket file is removed on stop")

	// Stop is idempotent
	server.Stop()
}

func TestClientStatus(t *testing.T) {
	h := &mockHandler{stats: sampleStats()}
	_, client := startServer(t, h)

	stats, err := client.Status()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "left", stats[0].Name)
	assert.Equal(t, uint64(1200), stats[0].Frames)
	assert.Equal(t, libevdi.DPMSOff, stats[1].Power)
	assert.True(t, client.IsRunning())
}

func TestClientStop(t *testing.T) {
	h := &mockHandler{}
	_, client := startServer(t, h)

	require.NoError(t, client.Stop())
	assert.Equal(t, 1, h.stopCount())

	h.failStop(errors.New("already stopping"))
	assert.ErrorContains(t, client.Stop(), "already stopping")
}

func TestServerRejectsUnknownMessages(t *testing.T) {
	server, _ := startServer(t, &mockHandler{})

	resp := server.handleMessage(Message{Type: MessageAck})
	assert.Equal(t, MessageError, resp.Type)
	assert.Contains(t, resp.Error, "unknown message type: ack")
}

func TestClientNotRunning(t *testing.T) {
	client, err := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	require.NoError(t, err)

	_, err = client.Status()
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.False(t, client.IsRunning())
}

func TestConcurrentClients(t *testing.T) {
	_, client := startServer(t, &mockHandler{stats: sampleStats()})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := client.Status()
			if err == nil && len(stats) != 2 {
				err = errors.New("short status")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
