// Package invalidation defines the messages that evict capabilities cache entries.
package invalidation

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Scope string

const (
	ScopeService Scope = "service"
	ScopeAll     Scope = "all"
)

// Event asks every resolver instance to drop cached capabilities.
// Seq, when set, orders events per service: an event whose Seq is not greater
// than the last applied one for the same service is ignored.
type Event struct {
	Version    int       `json:"version"`
	Scope      Scope     `json:"scope"`
	ServiceURL string    `json:"service_url,omitempty"`
	Seq        uint64    `json:"seq,omitempty"`
	TS         time.Time `json:"ts,omitempty"`
	Source     string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Scope {
	case ScopeAll:
		if e.ServiceURL != "" {
			return fmt.Errorf("service_url must be empty for scope all")
		}
		return nil
	case ScopeService:
	default:
		return fmt.Errorf("scope must be service|all")
	}
	if strings.TrimSpace(e.ServiceURL) == "" {
		return fmt.Errorf("service_url is required")
	}
	u, err := url.Parse(e.ServiceURL)
	if err != nil {
		return fmt.Errorf("service_url parse: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("service_url must be an absolute http(s) url")
	}
	return nil
}

// DedupeKey identifies the stream of events Seq is ordered within.
func (e Event) DedupeKey() string {
	if e.Scope == ScopeAll {
		return "*"
	}
	return e.ServiceURL
}
