// Package client queries a termsearch server. The protocol carries one request
// per TCP connection, so every Query dials anew.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrServer is wrapped by errors the server reported in its response.
var ErrServer = errors.New("server error")

// Result is a decoded query response.
type Result struct {
	Query   string   `json:"query"`
	Count   int      `json:"count"`
	Results []string `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Client sends queries to one server address.
type Client struct {
	addr    string
	dialer  net.Dialer
	timeout time.Duration
}

// New returns a Client for addr. timeout bounds each whole request; zero
// leaves it to ctx.
func New(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

// Query sends term and decodes the single-line response. A response carrying
// an "error" field is returned as an error wrapping ErrServer.
func (c *Client) Query(ctx context.Context, term string) (*Result, error) {
	if strings.ContainsAny(term, "\"\n") {
		return nil, fmt.Errorf("term %q cannot be sent: contains a quote or newline", term)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(encodeRequest(term)); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var res Result
	if err := json.Unmarshal(line, &res); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrServer, res.Error)
	}
	return &res, nil
}

// encodeRequest writes term verbatim. The server does not interpret escapes.
func encodeRequest(term string) []byte {
	buf := make([]byte, 0, len(term)+16)
	buf = append(buf, `{"query":"`...)
	buf = append(buf, term...)
	buf = append(buf, "\"}\n"...)
	return buf
}
