package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// ErrUnavailable means the tracker could not serve the lookup; callers
// fall back to manual topic entry.
var ErrUnavailable = errors.New("topic lookup unavailable")

// Lookup resolves an external issue key into a structured topic.
type Lookup interface {
	Fetch(ctx context.Context, key string) (*models.Topic, error)
}

// HTTPLookup queries an issue tracker exposing GET {base}/issues/{key}
// with a small JSON body.
type HTTPLookup struct {
	base   string
	client *http.Client
}

func NewHTTPLookup(base string) *HTTPLookup {
	return &HTTPLookup{base: base, client: &http.Client{Timeout: 5 * time.Second}}
}

type issuePayload struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
	URL     string `json:"url"`
}

func (l *HTTPLookup) Fetch(ctx context.Context, key string) (*models.Topic, error) {
	u := fmt.Sprintf("%s/issues/%s", l.base, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnavailable
	}
	var p issuePayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, ErrUnavailable
	}
	return &models.Topic{
		Title:       p.Summary,
		Description: p.Detail,
		ExternalKey: p.Key,
		ExternalURL: p.URL,
	}, nil
}
