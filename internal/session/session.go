// Package session rotates proxy and user-agent pairings across requests.
package session

import (
	"sync"

	"github.com/jordanhale/snapcrawl/internal/crawler"
)

const defaultUserAgent = "snapcrawl/0.1"

// Picker hands out profiles round-robin. Proxies and user agents rotate
// independently so their pairings vary over time.
type Picker struct {
	mu         sync.Mutex
	proxies    []string
	userAgents []string
	proxyIdx   int
	agentIdx   int
}

// NewPicker creates a Picker. Both lists may be empty; an empty proxy list
// means direct connections and an empty agent list falls back to the
// default user agent.
func NewPicker(proxies, userAgents []string) *Picker {
	return &Picker{
		proxies:    append([]string(nil), proxies...),
		userAgents: append([]string(nil), userAgents...),
	}
}

// Next returns the profile for the next request.
func (p *Picker) Next() crawler.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile := crawler.Profile{UserAgent: defaultUserAgent}
	if len(p.proxies) > 0 {
		profile.ProxyURL = p.proxies[p.proxyIdx%len(p.proxies)]
		p.proxyIdx++
	}
	if len(p.userAgents) > 0 {
		profile.UserAgent = p.userAgents[p.agentIdx%len(p.userAgents)]
		p.agentIdx++
	}
	return profile
}
