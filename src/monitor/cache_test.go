package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respServer answers PING, GET, SET and DEL over the Redis protocol and keeps
// the raw keys it was sent.
type respServer struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]string
	keys []string
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &respServer{ln: ln, data: map[string]string{}}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *respServer) addr() string { return s.ln.Addr().String() }

func (s *respServer) seenKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *respServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, s.reply(args)); err != nil {
			return
		}
	}
}

func (s *respServer) reply(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(args) > 1 {
		s.keys = append(s.keys, args[1])
	}
	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "GET":
		v, ok := s.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "SET":
		s.data[args[1]] = args[2]
		return "+OK\r\n"
	case "DEL":
		n := 0
		for _, k := range args[1:] {
			if _, ok := s.data[k]; ok {
				delete(s.data, k)
				n++
			}
		}
		return fmt.Sprintf(":%d\r\n", n)
	}
	return "-ERR unknown command\r\n"
}

// readCommand reads one array of bulk strings.
func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(hdr[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestRedisStoreRoundTripWithPrefix(t *testing.T) {
	srv := newRESPServer(t)
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: srv.addr(), Prefix: "perfviewer:"})
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(ctx, "svMain")
	require.NoError(t, err, "a missing key is a miss, not an error")
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "svMain", []byte(`{"boundaries":[]}`), time.Minute))
	raw, ok, err := store.Get(ctx, "svMain")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"boundaries":[]}`, string(raw))

	require.NoError(t, store.Delete(ctx, "svMain"))
	_, ok, err = store.Get(ctx, "svMain")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, k := range srv.seenKeys() {
		assert.Equal(t, "perfviewer:svMain", k)
	}
	assert.NotEmpty(t, srv.seenKeys())
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	srv := newRESPServer(t)
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: srv.addr()})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "svSync", []byte("x"), 0))
	assert.Contains(t, srv.seenKeys(), "perfchart:svSync")
}

func TestRedisStoreFromClientSurfacesErrors(t *testing.T) {
	srv := newRESPServer(t)
	client := redis.NewClient(&redis.Options{Addr: srv.addr(), MaxRetries: -1})
	store := NewRedisStoreFromClient(client, "p:")
	require.NoError(t, store.Close())

	_, ok, err := store.Get(context.Background(), "svNetwork")
	assert.Error(t, err, "a closed client must not look like a miss")
	assert.False(t, ok)
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
	assert.Nil(t, store)
}
