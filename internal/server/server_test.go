package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/client"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
)

type running struct {
	srv    *Server
	exec   *executor.Executor
	store  *segment.Store
	cancel context.CancelFunc
	errCh  chan error
}

func (r *running) addr() string { return r.srv.Addr().String() }

func (r *running) shutdown(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func buildStore(t *testing.T, files map[string]string) *segment.Store {
	t.Helper()
	docs := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(docs, name), []byte(content), 0o644))
	}
	snap, _, err := indexer.NewBuilder(nil).BuildIndex(context.Background(), docs)
	require.NoError(t, err)

	out := t.TempDir()
	store := segment.NewStore(config.IndexConfig{
		IndexPath:    filepath.Join(out, "index.bin"),
		ManifestPath: filepath.Join(out, "manifest.bin"),
		LockTimeout:  time.Second,
	})
	require.NoError(t, store.Save(context.Background(), snap))
	return store
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		MaxRequestBytes: 256,
		ShutdownTimeout: time.Second,
	}
}

func start(t *testing.T, cfg config.ServerConfig, store *segment.Store, m *metrics.Metrics) *running {
	t.Helper()
	exec := executor.New(nil)
	srv := New(cfg, store, exec, nil, nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{srv: srv, exec: exec, store: store, cancel: cancel, errCh: make(chan error, 1)}
	go func() { r.errCh <- srv.ListenAndServe(ctx) }()
	select {
	case <-srv.Ready():
	case err := <-r.errCh:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server not ready")
	}
	t.Cleanup(cancel)
	return r
}

func roundTrip(t *testing.T, addr string, writes ...string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	for _, w := range writes {
		_, err := conn.Write([]byte(w))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	rest, _ := io.ReadAll(conn)
	assert.Empty(t, rest, "connection should close after the response")
	return line
}

func decode(t *testing.T, line string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestServeQuery(t *testing.T) {
	store := buildStore(t, map[string]string{
		"a.txt": "the cat sat",
		"b.txt": "a dog ran",
		"c.txt": "cat and dog",
	})
	r := start(t, testConfig(), store, nil)

	line := roundTrip(t, r.addr(), `{"query":"cat"}`)
	assert.True(t, strings.HasSuffix(line, "\n"))
	resp := decode(t, line)
	assert.Equal(t, "cat", resp.Query)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"a.txt", "c.txt"}, resp.Results)

	resp = decode(t, roundTrip(t, r.addr(), `{"query":"bird"}`))
	assert.Equal(t, 0, resp.Count)
	assert.Equal(t, []string{}, resp.Results)

	r.shutdown(t)
	assert.Equal(t, StateStopped, r.srv.State())
}

func TestServeSplitRequest(t *testing.T) {
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "hello world hello"}), nil)
	resp := decode(t, roundTrip(t, r.addr(), `{"que`, `ry":"hel`, `lo"}`))
	assert.Equal(t, "hello", resp.Query)
	assert.Equal(t, []string{"a.txt"}, resp.Results)
}

func TestServeInvalidQuery(t *testing.T) {
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat"}), nil)
	assert.Equal(t, `{"error":"Invalid query"}`+"\n", roundTrip(t, r.addr(), `{"query":""}`))
	assert.Equal(t, `{"error":"Invalid query"}`+"\n", roundTrip(t, r.addr(), "not json\n"))
}

func TestServeMalformedWithoutNewline(t *testing.T) {
	cfg := testConfig()
	cfg.RequestIdle = 50 * time.Millisecond
	r := start(t, cfg, buildStore(t, map[string]string{"a.txt": "cat hello"}), nil)
	for _, payload := range []string{`{"q":"cat"}`, `{"query":123}`, "hello"} {
		t.Run(payload, func(t *testing.T) {
			assert.Equal(t, `{"error":"Invalid query"}`+"\n", roundTrip(t, r.addr(), payload))
		})
	}
}

func TestServeRequestTooLarge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat"}), m)

	line := roundTrip(t, r.addr(), `{"query":"`+strings.Repeat("x", 400)+`"}`)
	assert.Equal(t, `{"error":"request too large"}`+"\n", line)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestErrorsTotal.WithLabelValues("too_large")))
}

func TestServeRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat", "b.txt": "dog"}), m)

	roundTrip(t, r.addr(), `{"query":"cat"}`)
	roundTrip(t, r.addr(), `{"query":"bird"}`)
	r.shutdown(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConnectionsInFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexDocuments))
}

func TestShutdownReleasesSnapshot(t *testing.T) {
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat"}), nil)
	assert.NotNil(t, r.exec.Snapshot())
	addr := r.addr()
	r.shutdown(t)
	assert.Nil(t, r.exec.Snapshot())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat"}), nil)
	conn, err := net.Dial("tcp", r.addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"query":`))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	r.cancel()
	_, err = conn.Write([]byte(`"cat"}`))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, decode(t, line).Results)
	require.NoError(t, <-r.errCh)
}

func TestMissingIndexFails(t *testing.T) {
	dir := t.TempDir()
	store := segment.NewStore(config.IndexConfig{
		IndexPath:    filepath.Join(dir, "index.bin"),
		ManifestPath: filepath.Join(dir, "manifest.bin"),
	})
	srv := New(testConfig(), store, executor.New(nil), nil, nil, nil)
	err := srv.ListenAndServe(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)
	assert.Equal(t, StateStopped, srv.State())
	assert.Nil(t, srv.Addr())
}

func TestBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	store := buildStore(t, map[string]string{"a.txt": "cat"})
	exec := executor.New(nil)
	srv := New(cfg, store, exec, nil, nil, nil)
	err = srv.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")
	assert.Equal(t, StateStopped, srv.State())
	assert.Nil(t, exec.Snapshot())
}

func TestCancelledBeforeListen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := index.NewSnapshot(index.InvertedIndex{}, index.Manifest{})
	exec := executor.New(nil)
	srv := New(testConfig(), staticLoader{snap}, exec, nil, nil, nil)
	err := srv.ListenAndServe(ctx)
	assert.Nil(t, exec.Snapshot())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentClients(t *testing.T) {
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat", "b.txt": "cat"}), nil)
	errs := make(chan error, 20)
	for range 20 {
		go func() {
			conn, err := net.Dial("tcp", r.addr())
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			if _, err := conn.Write([]byte(`{"query":"cat"}`)); err != nil {
				errs <- err
				return
			}
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				errs <- err
				return
			}
			var resp Response
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				errs <- err
				return
			}
			if resp.Count != 2 {
				errs <- errors.New("unexpected count")
				return
			}
			errs <- nil
		}()
	}
	for range 20 {
		assert.NoError(t, <-errs)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "accepting", StateAccepting.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestLoaderSnapshotIsServedAsLoaded(t *testing.T) {
	snap := index.NewSnapshot(index.InvertedIndex{"x": {0: 1}}, index.Manifest{0: "/tmp/x.txt"})
	srv := New(testConfig(), staticLoader{snap}, executor.New(nil), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	<-srv.Ready()
	resp := decode(t, roundTrip(t, srv.Addr().String(), `{"query":"x"}`))
	assert.Equal(t, []string{"x.txt"}, resp.Results)
	cancel()
	require.NoError(t, <-errCh)
}

type staticLoader struct{ snap *index.Snapshot }

func (l staticLoader) Load(context.Context) (*index.Snapshot, error) { return l.snap, nil }

func TestServeWithClient(t *testing.T) {
	r := start(t, testConfig(), buildStore(t, map[string]string{"a.txt": "cat", "b.txt": "dog"}), nil)
	c := client.New(r.addr(), 2*time.Second)

	res, err := c.Query(context.Background(), "dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, res.Results)

	_, err = c.Query(context.Background(), "")
	assert.ErrorIs(t, err, client.ErrServer)
}
