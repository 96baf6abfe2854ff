// Package socket implements MpdExecutor: a line-oriented client for the
// Music Player Daemon protocol, pooled over a keyed connection pool.
package socket

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/senatoreg/pyfreeflow/envutil"
	"github.com/senatoreg/pyfreeflow/pool"
)

var (
	greetingRe = regexp.MustCompile(`^OK MPD [0-9.]+`)
	fieldRe    = regexp.MustCompile(`^([\w\d]+):\s*(.*)$`)
)

// mpdConn is a live connection plus a buffered reader over its socket,
// since the liveness probe and every command read line-delimited
// responses back from the daemon.
type mpdConn struct {
	net.Conn
	r *bufio.Reader
}

func dialMpd(ctx context.Context, network, address string) (*mpdConn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	r := bufio.NewReader(conn)
	greeting, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !greetingRe.MatchString(greeting) {
		conn.Close()
		return nil, fmt.Errorf("socket: unexpected mpd greeting %q", greeting)
	}

	return &mpdConn{Conn: conn, r: r}, nil
}

func probeMpd(c *mpdConn) bool {
	if _, err := c.Write([]byte("currentsong\n")); err != nil {
		return false
	}
	if err := c.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return false
	}
	defer c.SetReadDeadline(time.Time{})

	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return false
		}
		if strings.TrimRight(line, "\n") == "OK" {
			return true
		}
	}
}

func closeMpd(c *mpdConn) error {
	c.Write([]byte("close\n"))
	return c.Close()
}

var connPool = pool.New[*mpdConn]()

func registerPool(name, network, address string, maxConnections int) {
	connPool.Register(name, maxConnections,
		func(ctx context.Context) (*mpdConn, error) {
			return dialMpd(ctx, network, address)
		},
		probeMpd,
		closeMpd,
	)
}

func addressFromConfig(config map[string]any) (network, address string) {
	if path, ok := config["path"].(string); ok && path != "" {
		return "unix", envutil.ExpandEnv(path)
	}
	host, _ := config["host"].(string)
	if host == "" {
		host = "localhost"
	}
	port := 6600
	if p, ok := config["port"].(int); ok {
		port = p
	}
	return "tcp", fmt.Sprintf("%s:%d", envutil.ExpandEnv(host), port)
}
