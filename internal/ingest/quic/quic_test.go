package quic

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/playcore/internal/certs"
	"github.com/zsiec/playcore/internal/ingest"
)

type received struct {
	key      string
	protocol string
	data     []byte
}

func startServer(t *testing.T) (string, *certs.Cert, <-chan received) {
	t.Helper()
	cert, err := certs.Generate(time.Hour)
	require.NoError(t, err)

	got := make(chan received, 4)
	reg := ingest.NewRegistry(func(s *ingest.Stream, input io.ReadCloser) {
		b, _ := io.ReadAll(input)
		got <- received{key: s.Key, protocol: s.Protocol, data: b}
	})
	srv := NewServer("127.0.0.1:0", cert.ServerTLS(), reg, nil)
	addr, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return")
		}
	})
	return addr.String(), cert, got
}

func TestPushDeliversStream(t *testing.T) {
	t.Parallel()
	addr, cert, got := startServer(t)

	payload := bytes.Repeat([]byte{0x47, 1, 2, 3}, 10_000)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := Push(ctx, addr, cert.ClientTLS(), "live/cam1", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)

	select {
	case r := <-got:
		require.Equal(t, "live/cam1", r.key)
		require.Equal(t, Protocol, r.protocol)
		require.Equal(t, payload, r.data)
	case <-time.After(5 * time.Second):
		t.Fatal("stream never reached the registry")
	}
}

func TestServerRejectsBadKey(t *testing.T) {
	t.Parallel()
	addr, cert, got := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tlsConf := cert.ClientTLS(ALPN)
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	require.NoError(t, err)
	str, err := conn.OpenUniStreamSync(ctx)
	require.NoError(t, err)
	_, err = str.Write(AppendKey(nil, "no spaces allowed"))
	require.NoError(t, err)
	str.Close()

	select {
	case <-conn.Context().Done():
	case <-ctx.Done():
		t.Fatal("server did not close the connection")
	}
	var appErr *quic.ApplicationError
	require.ErrorAs(t, context.Cause(conn.Context()), &appErr)
	require.Equal(t, codeBadHeader, appErr.ErrorCode)

	select {
	case r := <-got:
		t.Fatalf("rejected publish reached the registry: %q", r.key)
	default:
	}
}

func TestPushRejectsBadKeyLocally(t *testing.T) {
	t.Parallel()
	_, err := Push(context.Background(), "127.0.0.1:1", nil, "", strings.NewReader(""))
	if !errors.Is(err, ErrBadKey) {
		t.Fatalf("err = %v, want ErrBadKey", err)
	}
}

func TestReadKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  []byte
		want    string
		wantErr bool
	}{
		{name: "valid", header: AppendKey(nil, "studio/a"), want: "studio/a"},
		{name: "trailing data kept", header: append(AppendKey(nil, "k"), 0x47, 0x00), want: "k"},
		{name: "empty", header: AppendKey(nil, ""), wantErr: true},
		{name: "truncated", header: AppendKey(nil, "abcdef")[:4], wantErr: true},
		{name: "too long", header: AppendKey(nil, strings.Repeat("a", maxKeyLen+1)), wantErr: true},
		{name: "invalid characters", header: AppendKey(nil, "a b"), wantErr: true},
		{name: "no header", header: nil, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadKey(bytes.NewReader(tc.header))
			if tc.wantErr {
				if !errors.Is(err, ErrBadKey) {
					t.Fatalf("ReadKey = %q, %v; want ErrBadKey", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadKey: %v", err)
			}
			if got != tc.want {
				t.Errorf("ReadKey = %q, want %q", got, tc.want)
			}
		})
	}
}
