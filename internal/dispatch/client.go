package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hpeluzio/agentic-repo/internal/metrics"
	"github.com/hpeluzio/agentic-repo/internal/upload"
)

// Client performs outbound calls to the downstream agents. Each call is
// bounded by the capability's timeout budget, derived from the inbound
// request context so a caller disconnect cancels the in-flight call.
type Client struct {
	table *Table
	http  *http.Client
}

// NewClient creates a dispatch client over the given table. Timeouts are
// applied per call via context, not on the shared http.Client.
func NewClient(table *Table) *Client {
	return &Client{
		table: table,
		http:  &http.Client{},
	}
}

// CallJSON posts a JSON body to the capability's endpoint and returns the
// raw response body. Failures come back as a classified *Error.
func (c *Client) CallJSON(ctx context.Context, capability Capability, body any) ([]byte, error) {
	target, err := c.table.Lookup(capability)
	if err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: err}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: fmt.Errorf("encode request: %w", err)}
	}

	return c.do(ctx, capability, target, "application/json", bytes.NewReader(payload))
}

// RelayFile posts the validated upload to the capability's multipart
// endpoint under the "file" form field, preserving the original bytes.
func (c *Client) RelayFile(ctx context.Context, capability Capability, f *upload.File) ([]byte, error) {
	target, err := c.table.Lookup(capability)
	if err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: err}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Filename))
	hdr.Set("Content-Type", f.ContentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: fmt.Errorf("build multipart body: %w", err)}
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: fmt.Errorf("build multipart body: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: fmt.Errorf("build multipart body: %w", err)}
	}

	return c.do(ctx, capability, target, mw.FormDataContentType(), &buf)
}

func (c *Client) do(ctx context.Context, capability Capability, target Target, contentType string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, body)
	if err != nil {
		return nil, &Error{Capability: capability, Kind: KindDownstream, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-Id", uuid.New().String())

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		derr := classify(capability, err)
		metrics.ObserveDispatch(string(capability), string(derr.Kind), elapsed)
		log.Warn().
			Str("capability", string(capability)).
			Str("kind", string(derr.Kind)).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("downstream call failed")
		return nil, derr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		derr := classify(capability, err)
		metrics.ObserveDispatch(string(capability), string(derr.Kind), elapsed)
		return nil, derr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &Error{
			Capability: capability,
			Kind:       KindDownstream,
			Err:        fmt.Errorf("downstream returned status %d", resp.StatusCode),
		}
		metrics.ObserveDispatch(string(capability), string(derr.Kind), elapsed)
		log.Warn().
			Str("capability", string(capability)).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("downstream returned error status")
		return nil, derr
	}

	metrics.ObserveDispatch(string(capability), "success", elapsed)
	log.Debug().
		Str("capability", string(capability)).
		Dur("elapsed", elapsed).
		Msg("downstream call succeeded")
	return raw, nil
}

// classify maps a transport failure onto the error taxonomy: budget
// overruns become timeouts, everything else on the wire becomes
// unavailable (connection refused, DNS failure, unreachable host).
func classify(capability Capability, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Capability: capability, Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Capability: capability, Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Capability: capability, Kind: KindDownstream, Err: err}
	default:
		return &Error{Capability: capability, Kind: KindUnavailable, Err: err}
	}
}
