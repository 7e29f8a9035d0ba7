package renderer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultRemoteTimeout = 500 * time.Millisecond

// Remote drives a puppet process over HTTP:
//
//	POST /mouth      {"amplitude": 0.42}
//	POST /expression {"expression": "happy"}
//	POST /motion     {"motion": "wave"}
//	GET  /expressions, GET /motions  -> ["happy", ...]
//
// Label lists are fetched once and cached unless set with WithLabels.
type Remote struct {
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	expressions []string
	motions     []string
	haveExpr    bool
	haveMotions bool
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client. The timeout passed to
// NewRemote is not applied to it.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithLabels fixes the label lists instead of fetching them. Empty lists
// are still fetched.
func WithLabels(expressions, motions []string) RemoteOption {
	return func(r *Remote) {
		if len(expressions) > 0 {
			r.expressions = append([]string(nil), expressions...)
			r.haveExpr = true
		}
		if len(motions) > 0 {
			r.motions = append([]string(nil), motions...)
			r.haveMotions = true
		}
	}
}

func NewRemote(baseURL string, timeout time.Duration, opts ...RemoteOption) *Remote {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	r := &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, fn := range opts {
		fn(r)
	}

	return r
}

func (r *Remote) SetMouth(v float64) error {
	return r.post("/mouth", map[string]float64{"amplitude": clamp01(v)})
}

func (r *Remote) SetExpression(name string) error {
	return r.post("/expression", map[string]string{"expression": name})
}

func (r *Remote) DoMotion(name string) error {
	return r.post("/motion", map[string]string{"motion": name})
}

// Expressions returns the puppet's expression labels, or nil if they cannot
// be fetched.
func (r *Remote) Expressions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveExpr {
		labels, err := r.fetchLabels("/expressions")
		if err != nil {
			return nil
		}
		r.expressions, r.haveExpr = labels, true
	}

	return append([]string(nil), r.expressions...)
}

// Motions returns the puppet's motion labels, or nil if they cannot be
// fetched.
func (r *Remote) Motions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveMotions {
		labels, err := r.fetchLabels("/motions")
		if err != nil {
			return nil
		}
		r.motions, r.haveMotions = labels, true
	}

	return append([]string(nil), r.motions...)
}

func (r *Remote) post(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	resp, err := r.client.Post(r.baseURL+path, "application/json", bytes.NewReader(payload)) //nolint:noctx
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post %s: unexpected status %s", path, resp.Status)
	}

	return nil
}

func (r *Remote) fetchLabels(path string) ([]string, error) {
	resp, err := r.client.Get(r.baseURL + path) //nolint:noctx
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %s", path, resp.Status)
	}

	var labels []string
	if err := json.NewDecoder(resp.Body).Decode(&labels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if labels == nil {
		labels = []string{}
	}

	return labels, nil
}
