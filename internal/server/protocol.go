package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
)

const readChunk = 512

var queryField = []byte(`"query"`)

// ExtractQuery pulls the query term out of a request payload. It finds the
// "query" field name, then the next colon, then returns the text between the
// following pair of double quotes. complete is false when the closing quote
// has not arrived yet. Escapes are not interpreted and anything malformed
// yields an empty term.
func ExtractQuery(payload []byte) (term string, complete bool) {
	pos := bytes.Index(payload, queryField)
	if pos < 0 {
		return "", false
	}
	rest := payload[pos+len(queryField):]
	colon := bytes.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = rest[colon+1:]
	open := bytes.IndexByte(rest, '"')
	if open < 0 {
		return "", false
	}
	rest = rest[open+1:]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return string(rest[:end]), true
}

// requestDone reports whether payload holds a whole request: a newline or a
// complete query value.
func requestDone(payload []byte) bool {
	if bytes.IndexByte(payload, '\n') >= 0 {
		return true
	}
	_, complete := ExtractQuery(payload)
	return complete
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// readRequest reads from r until the request is done, the peer closes its
// side, or limit bytes have arrived without the request completing. When r
// supports read deadlines and idle is positive, a partial request that gets
// no new bytes for idle is returned as it stands. deadline, if non-zero,
// caps every idle deadline.
func readRequest(r io.Reader, limit int, idle time.Duration, deadline time.Time) ([]byte, error) {
	buf := make([]byte, 0, min(limit, readChunk))
	chunk := make([]byte, readChunk)
	dr, canIdle := r.(readDeadliner)
	canIdle = canIdle && idle > 0
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if len(buf) > limit {
			if requestDone(buf[:limit]) {
				return buf[:limit], nil
			}
			return nil, apperrors.Newf(apperrors.ErrRequestTooLarge, "more than %d bytes without a complete query", limit)
		}
		if n > 0 && requestDone(buf) {
			return buf, nil
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			var ne net.Error
			if len(buf) > 0 && errors.As(err, &ne) && ne.Timeout() {
				return buf, nil
			}
			return buf, err
		}
		if canIdle && n > 0 {
			next := time.Now().Add(idle)
			if !deadline.IsZero() && deadline.Before(next) {
				next = deadline
			}
			if err := dr.SetReadDeadline(next); err != nil {
				return buf, err
			}
		}
	}
}

// Response is the document sent for a served query. Results are filenames
// without their directory.
type Response struct {
	Query   string   `json:"query"`
	Count   int      `json:"count"`
	Results []string `json:"results"`
}

// NewResponse builds the Response for term from full document paths.
func NewResponse(term string, paths []string) Response {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return Response{Query: term, Count: len(names), Results: names}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Encode writes v as one line of JSON. HTML characters are left unescaped so
// terms and filenames are echoed as they are.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func encodeError(w io.Writer, err error) error {
	return Encode(w, errorResponse{Error: apperrors.WireMessage(err)})
}
