// Package objectstore implements the Object Stream (§4.3): a
// single-HTTP-transaction GET/PUT session abstraction the I/O engine
// drives one chunk at a time. A Stream presents a blocking byte-oriented
// interface on top of net/http, preserving the two properties §9 calls
// out: backpressure (Put blocks the caller until the server has consumed
// the bytes, via io.Pipe) and abort semantics (the server sees a broken
// body and discards the pending PUT).
package objectstore

import (
	"fmt"
	"io"
	"net/http"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Method is the HTTP verb a Stream issues.
type Method int

const (
	GET Method = iota
	PUT
)

// state bits, named to match §4.3's "Sets OPEN, clears CLOSED" language.
type state uint8

const (
	stOpen state = 1 << iota
	stClosed
)

// Stream is one object's GET or PUT session. Not safe for concurrent use:
// §5 guarantees at most one in-flight operation per handle.
type Stream struct {
	client *http.Client
	url    string

	method   Method
	state    state
	written  int64 // cumulative bytes pushed across possibly-several re-opens
	rangeSet bool
	rangeLo  int64

	// PUT side
	pw       *io.PipeWriter
	pr       *io.PipeReader
	putErrCh chan error

	// GET side
	resp *http.Response
}

// New constructs a Stream bound to one backing-object URL. The caller
// (the engine's host/URL assembly, per §4.5.1 and hostselect) is
// responsible for rendering url from the repository template and PRE.
func New(client *http.Client, url string) *Stream {
	if client == nil {
		client = http.DefaultClient
	}
	return &Stream{client: client, url: url}
}

// SetRange installs an open-ended byte range for a subsequent GET Open,
// per §4.3's "byte-range support for GET: install an open-ended range
// starting at a chunk offset."
func (s *Stream) SetRange(lo int64) {
	s.rangeSet = true
	s.rangeLo = lo
}

// Open begins the HTTP transaction. sizeHint of zero means unknown
// length — PUT uses chunked transfer encoding; nonzero installs
// Content-Length (Put itself does not count bytes against it).
// preserveWritten carries the cumulative written counter across re-opens,
// used when a logical file spans multiple backing objects.
func (s *Stream) Open(method Method, sizeHint int64, preserveWritten bool) error {
	if !preserveWritten {
		s.written = 0
	}
	s.method = method
	s.state = stOpen

	switch method {
	case PUT:
		return s.openPut(sizeHint)
	case GET:
		return s.openGet()
	default:
		return fmt.Errorf("marfs: unknown object stream method %d", method)
	}
}

func (s *Stream) openPut(sizeHint int64) error {
	pr, pw := io.Pipe()
	s.pr, s.pw = pr, pw
	s.putErrCh = make(chan error, 1)

	req, err := http.NewRequest(http.MethodPut, s.url, pr)
	if err != nil {
		return marfserrors.NewTransportError("open", s.url, err)
	}
	if sizeHint > 0 {
		req.ContentLength = sizeHint
	} else {
		req.ContentLength = -1 // chunked transfer encoding
	}

	go func() {
		resp, err := s.client.Do(req)
		if err != nil {
			s.putErrCh <- marfserrors.NewTransportError("put", s.url, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
			s.putErrCh <- marfserrors.NewTransportError("put", s.url,
				fmt.Errorf("unexpected status %d", resp.StatusCode))
			return
		}
		s.putErrCh <- nil
	}()
	return nil
}

func (s *Stream) openGet() error {
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return marfserrors.NewTransportError("open", s.url, err)
	}
	if s.rangeSet {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", s.rangeLo))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return marfserrors.NewTransportError("get", s.url, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return marfserrors.NewTransportError("get", s.url,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	s.resp = resp
	return nil
}

// Put streams n bytes of buf to the server. Blocks until the server has
// consumed them (io.Pipe backpressure) — a short write without an error
// never happens; errors are returned instead.
func (s *Stream) Put(buf []byte) (int, error) {
	if s.method != PUT || s.pw == nil {
		return 0, marfserrors.NewUnsupportedError("put")
	}
	n, err := s.pw.Write(buf)
	s.written += int64(n)
	if err != nil {
		return n, marfserrors.NewTransportError("put", s.url, err)
	}
	return n, nil
}

// Get reads up to len(buf) bytes. Per §4.3, a partial read is not an
// error — the engine retries until the requested sub-range is filled or a
// zero-byte / hard-error result occurs.
func (s *Stream) Get(buf []byte) (int, error) {
	if s.method != GET || s.resp == nil {
		return 0, marfserrors.NewUnsupportedError("get")
	}
	n, err := s.resp.Body.Read(buf)
	s.written += int64(n)
	if err != nil && err != io.EOF {
		return n, marfserrors.NewTransportError("get", s.url, err)
	}
	if err == io.EOF && n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Sync blocks until all in-flight transfer completes. For GET there is
// nothing in flight beyond what Get already drains synchronously; for PUT
// it is a no-op here too since io.Pipe.Write already blocks until the
// peer has read the bytes — the backpressure §9 asks for is already in
// effect on every Put call. Sync exists to match the §4.3 contract shape
// and as the hook a future buffered transport would need.
func (s *Stream) Sync() error {
	return nil
}

// Close ends the session cleanly. For PUT, this closes the pipe (EOF to
// the HTTP request body) and waits for the server's response.
func (s *Stream) Close() error {
	defer func() { s.state = stClosed }()
	switch s.method {
	case PUT:
		if s.pw == nil {
			return nil
		}
		if err := s.pw.Close(); err != nil {
			return marfserrors.NewTransportError("close", s.url, err)
		}
		err := <-s.putErrCh
		s.pw, s.pr = nil, nil
		return err
	case GET:
		if s.resp == nil {
			return nil
		}
		err := s.resp.Body.Close()
		s.resp = nil
		if err != nil {
			return marfserrors.NewTransportError("close", s.url, err)
		}
		return nil
	}
	return nil
}

// Abort signals the writer-side callback to return zero bytes so the
// server discards the pending PUT, then closes. Used on ftruncate(0) over
// an open write stream (§4.5.4).
func (s *Stream) Abort() error {
	if s.method == PUT && s.pw != nil {
		_ = s.pw.CloseWithError(io.ErrClosedPipe)
		<-s.putErrCh // drain; the broken body guarantees a non-nil error here
		s.pw, s.pr = nil, nil
		s.state = stClosed
		return nil
	}
	return s.Close()
}

// Written returns the cumulative bytes pushed/pulled across this stream's
// lifetime (possibly across several re-opens with preserveWritten=true).
func (s *Stream) Written() int64 { return s.written }

// IsOpen reports whether Open has been called without a matching Close.
func (s *Stream) IsOpen() bool { return s.state&stOpen != 0 && s.state&stClosed == 0 }

// URLFor renders the request URL for one object chunk, combining the
// repository's scheme/host/bucket with an object key, per §6's
// "scheme://host/bucket/objid[-chunk_no]".
func URLFor(repo *model.Repository, host, key string) string {
	scheme := "http"
	if repo.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, repo.Bucket, key)
}
