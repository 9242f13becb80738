package server

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testRoot = "/srv/ftp"

// staticCreds is a plain-text credential table for tests.
type staticCreds map[string]string

func (c staticCreds) Verify(user, pass string) bool {
	want, ok := c[user]
	return ok && want == pass
}

// testEnv is a running server backed by an in-memory filesystem.
type testEnv struct {
	t      *testing.T
	base   afero.Fs
	server *Server
	addr   string
	logs   *syncBuffer
}

// newTestEnv starts a server with users alice (home with docs/ and
// hello.txt), bob (empty home) and nohome (no home directory).
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll(testRoot+"/alice/docs", 0o755))
	require.NoError(t, base.MkdirAll(testRoot+"/bob", 0o755))
	require.NoError(t, afero.WriteFile(base, testRoot+"/alice/hello.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(base, testRoot+"/alice/docs/readme.md", []byte("# docs\n"), 0o644))

	creds := staticCreds{"alice": "secret", "bob": "builder", "nohome": "nohome"}
	driver, err := NewFSDriver(testRoot, creds, WithBaseFs(base))
	require.NoError(t, err)

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	all := append([]Option{
		WithDriver(driver),
		WithLogger(logger),
		WithDataTimeout(2 * time.Second),
	}, opts...)
	srv, err := NewServer(ln.Addr().String(), all...)
	require.NoError(t, err)

	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return &testEnv{t: t, base: base, server: srv, addr: ln.Addr().String(), logs: logs}
}

// writeFile creates a file in the in-memory filesystem.
func (e *testEnv) writeFile(path string, data []byte) {
	e.t.Helper()
	require.NoError(e.t, afero.WriteFile(e.base, testRoot+path, data, 0o644))
}

func (e *testEnv) readFile(path string) []byte {
	e.t.Helper()
	data, err := afero.ReadFile(e.base, testRoot+path)
	require.NoError(e.t, err)
	return data
}

// ctrl is a raw control connection.
type ctrl struct {
	t    *testing.T
	conn net.Conn
	r    *textproto.Reader
}

// dial connects and consumes the greeting.
func (e *testEnv) dial() *ctrl {
	e.t.Helper()
	c := e.dialRaw()
	c.expect(220)
	return c
}

func (e *testEnv) dialRaw() *ctrl {
	e.t.Helper()
	conn, err := net.DialTimeout("tcp", e.addr, 5*time.Second)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return &ctrl{t: e.t, conn: conn, r: textproto.NewReader(bufio.NewReader(conn))}
}

// login logs in as alice.
func (e *testEnv) login() *ctrl {
	e.t.Helper()
	c := e.dial()
	c.login("alice", "secret")
	return c
}

func (c *ctrl) send(format string, args ...any) {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	require.NoError(c.t, err)
}

// readReply returns the next reply line.
func (c *ctrl) readReply() string {
	c.t.Helper()
	line, err := c.r.ReadLine()
	require.NoError(c.t, err)
	return line
}

// expect reads a reply and checks its code.
func (c *ctrl) expect(code int) string {
	c.t.Helper()
	line := c.readReply()
	require.True(c.t, strings.HasPrefix(line, strconv.Itoa(code)+" "), "want %d, got %q", code, line)
	return line
}

// cmd sends a command and returns the reply line.
func (c *ctrl) cmd(format string, args ...any) string {
	c.t.Helper()
	c.send(format, args...)
	return c.readReply()
}

func (c *ctrl) login(user, pass string) {
	c.t.Helper()
	c.send("USER %s", user)
	c.expect(331)
	c.send("PASS %s", pass)
	c.expect(230)
}

// expectClosed checks that the server closed the control connection.
func (c *ctrl) expectClosed() {
	c.t.Helper()
	line, err := c.r.ReadLine()
	require.Error(c.t, err, "unexpected reply %q", line)
}

var pasvRe = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

// pasv issues PASV and returns the advertised address.
func (c *ctrl) pasv() string {
	c.t.Helper()
	line := c.cmd("PASV")
	m := pasvRe.FindStringSubmatch(line)
	require.NotNil(c.t, m, "bad PASV reply %q", line)
	require.True(c.t, strings.HasPrefix(line, "227 Entering Passive Mode ("))

	p1, _ := strconv.Atoi(m[5])
	p2, _ := strconv.Atoi(m[6])
	host := strings.Join(m[1:5], ".")
	return net.JoinHostPort(host, strconv.Itoa(p1*256+p2))
}

// activeListener opens a local listener and sends PORT for it.
func (c *ctrl) port() net.Listener {
	c.t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(c.t, err)
	c.t.Cleanup(func() { ln.Close() })

	port := ln.Addr().(*net.TCPAddr).Port
	c.send("PORT 127,0,0,1,%d,%d", port>>8, port&0xff)
	c.expect(250)
	return ln
}

func dialData(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	return conn
}

func acceptData(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	if tl, ok := ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(5 * time.Second))
	}
	conn, err := ln.Accept()
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	return conn
}

func readAll(t *testing.T, conn net.Conn) string {
	t.Helper()
	defer conn.Close()
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

// syncBuffer collects log output from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
