package directory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Converse/internal/domain"
)

// fakeRedis speaks just enough RESP2 for the directory: PING and HGETALL
// over fixed hashes. Everything else, HELLO included, is refused the way an
// old server refuses it.
func fakeRedis(t *testing.T, hashes map[string]map[string]string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveRESP(c, hashes)
		}
	}()
	return ln.Addr().String()
}

func serveRESP(c net.Conn, hashes map[string]map[string]string) {
	defer c.Close()
	r := bufio.NewReader(c)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		var out strings.Builder
		switch strings.ToUpper(args[0]) {
		case "PING":
			out.WriteString("+PONG\r\n")
		case "HGETALL":
			var h map[string]string
			if len(args) > 1 {
				h = hashes[args[1]]
			}
			fmt.Fprintf(&out, "*%d\r\n", 2*len(h))
			for k, v := range h {
				fmt.Fprintf(&out, "$%d\r\n%s\r\n$%d\r\n%s\r\n", len(k), k, len(v), v)
			}
		default:
			out.WriteString("-ERR unknown command\r\n")
		}
		if _, err := io.WriteString(c, out.String()); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array header %q", line)
	}
	args := make([]string, 0, n)
	for range n {
		hdr, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(hdr, "$")))
		if err != nil {
			return nil, fmt.Errorf("bad bulk header %q", hdr)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestRedisLookup(t *testing.T) {
	addr := fakeRedis(t, map[string]map[string]string{
		"users:u7": {"user_name": "kenji", "country": "JP", "fluency_level": "B2"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := OpenRedis(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	got, err := d.Lookup(ctx, "u7")
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Profile{UserID: "u7", Username: "kenji", Country: "JP", FluencyLevel: "B2"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	if _, err := d.Lookup(ctx, "missing"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("empty hash: got %v", err)
	}
}

func TestRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// nothing listens on port 1
	if _, err := OpenRedis(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("open must fail without a server")
	}

	d := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: time.Second}))
	defer d.Close()
	_, err := d.Lookup(ctx, "u7")
	if err == nil || errors.Is(err, ErrUnknownUser) {
		t.Fatalf("transport failure must not read as unknown user: %v", err)
	}
}

// TestRedisServer runs against a real server when CONVERSE_TEST_REDIS names one.
func TestRedisServer(t *testing.T) {
	addr := os.Getenv("CONVERSE_TEST_REDIS")
	if addr == "" {
		t.Skip("CONVERSE_TEST_REDIS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := OpenRedis(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })

	id := domain.UserID(fmt.Sprintf("test-%d", time.Now().UnixNano()))
	if err := d.rdb.HSet(ctx, userKey(id), "user_name", "ana", "country", "PT").Err(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.rdb.Del(context.Background(), userKey(id)) })

	got, err := d.Lookup(ctx, id)
	if err != nil || got.Username != "ana" || got.Country != "PT" || got.FluencyLevel != "" {
		t.Fatalf("got %+v %v", got, err)
	}
	if _, err := d.Lookup(ctx, id+"-missing"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("got %v", err)
	}
}
