package engine

import (
	"sync"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/enforcer"
)

// runStats accumulates counters from concurrent workers.
type runStats struct {
	mu sync.Mutex
	s  collector.RunStats
}

func (r *runStats) observeOutcome(res collector.FetchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Attempted++
	switch res.Status {
	case collector.StatusThinContent:
		r.s.ThinContent++
	case collector.StatusHTTPError:
		if res.ErrorPage {
			r.s.ErrorPages++
		} else {
			r.s.HTTPErrors++
		}
	case collector.StatusAccessDenied:
		r.s.AccessDenied++
	case collector.StatusNetworkError:
		r.s.NetworkErrors++
	}
}

func (r *runStats) observeAccept(rendered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Accepted++
	if rendered {
		r.s.RenderAssisted++
	}
}

func (r *runStats) observeReject(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch reason {
	case enforcer.ReasonTierQuota:
		r.s.OverTierQuota++
	case enforcer.ReasonDomainCap:
		r.s.OverDomainCap++
	}
}

func (r *runStats) observeLoginPage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.LoginPages++
}

func (r *runStats) snapshot() collector.RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

func (r *runStats) progress() (attempted, accepted int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.Attempted, r.s.Accepted
}
