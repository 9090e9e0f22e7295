// Package enforcer guards the composition of a collection run's output:
// the brand-owned/third-party ratio and a per-domain diversity cap.
package enforcer

import (
	"sort"
	"strings"
	"sync"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/metrics"
)

// Reject reasons returned by Offer.
const (
	ReasonTierQuota = "tier_quota"
	ReasonDomainCap = "domain_cap"
)

// Config sets the run's composition targets.
type Config struct {
	// Target is the total number of pages the run wants.
	Target int
	// BrandRatio is the fraction of Target reserved for brand-owned
	// pages, in [0,1]. The integer remainder of the split goes to
	// whichever side holds the larger ratio.
	BrandRatio float64
	// DomainCapFraction bounds how much of Target one domain may
	// contribute. The cap never drops below one page per domain.
	DomainCapFraction float64
	// ExemptBrandDomains lifts the domain cap for brand-owned pages so
	// a brand-heavy run can fill its quota from few properties.
	ExemptBrandDomains bool
}

// SplitTargets returns the brand and third-party page quotas for a
// total target and brand ratio.
func SplitTargets(target int, brandRatio float64) (brand, third int) {
	if target <= 0 {
		return 0, 0
	}
	if brandRatio < 0 {
		brandRatio = 0
	}
	if brandRatio > 1 {
		brandRatio = 1
	}
	brand = int(float64(target) * brandRatio)
	third = int(float64(target) * (1 - brandRatio))
	for brand+third < target {
		if brandRatio >= 0.5 {
			brand++
		} else {
			third++
		}
	}
	return brand, third
}

// DomainCap returns the per-domain page ceiling for a target.
func DomainCap(target int, fraction float64) int {
	limit := int(float64(target) * fraction)
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Enforcer accepts or rejects pages against the run quotas. All checks
// and the matching counter updates happen in one guarded step, so two
// concurrent offers can never both claim the last slot.
type Enforcer struct {
	cfg         Config
	brandTarget int
	thirdTarget int
	domainCap   int

	mu        sync.Mutex
	brand     int
	third     int
	perDomain map[string]int
	pages     []collector.Page
}

// New builds an Enforcer for one run.
func New(cfg Config) *Enforcer {
	brand, third := SplitTargets(cfg.Target, cfg.BrandRatio)
	return &Enforcer{
		cfg:         cfg,
		brandTarget: brand,
		thirdTarget: third,
		domainCap:   DomainCap(cfg.Target, cfg.DomainCapFraction),
		perDomain:   make(map[string]int),
	}
}

// Offer attempts to admit a page. It returns whether the page was
// accepted and, when it was not, the reject reason.
func (e *Enforcer) Offer(page collector.Page) (bool, string) {
	domain := pageDomain(page.URL)
	brandOwned := page.SourceType == collector.SourceBrandOwned

	e.mu.Lock()
	defer e.mu.Unlock()

	if brandOwned && e.brand >= e.brandTarget {
		metrics.ObserveReject(ReasonTierQuota)
		return false, ReasonTierQuota
	}
	if !brandOwned && e.third >= e.thirdTarget {
		metrics.ObserveReject(ReasonTierQuota)
		return false, ReasonTierQuota
	}

	capExempt := brandOwned && e.cfg.ExemptBrandDomains
	if !capExempt && e.perDomain[domain] >= e.domainCap {
		metrics.ObserveReject(ReasonDomainCap)
		return false, ReasonDomainCap
	}

	if brandOwned {
		e.brand++
	} else {
		e.third++
	}
	e.perDomain[domain]++
	e.pages = append(e.pages, page)
	return true, ""
}

// Done reports whether both quotas are filled.
func (e *Enforcer) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.brand >= e.brandTarget && e.third >= e.thirdTarget
}

// Counts returns the accepted page totals by side.
func (e *Enforcer) Counts() (brand, third int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.brand, e.third
}

// Targets returns the per-side quotas computed at construction.
func (e *Enforcer) Targets() (brand, third int) {
	return e.brandTarget, e.thirdTarget
}

// Finalize returns the accepted pages in deterministic output order:
// core-domain pages first, then remaining brand-owned, then third
// party, each group sorted by domain and URL.
func (e *Enforcer) Finalize() []collector.Page {
	e.mu.Lock()
	pages := make([]collector.Page, len(e.pages))
	copy(pages, e.pages)
	e.mu.Unlock()

	sort.Slice(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		if a.CoreDomain != b.CoreDomain {
			return a.CoreDomain
		}
		aBrand := a.SourceType == collector.SourceBrandOwned
		bBrand := b.SourceType == collector.SourceBrandOwned
		if aBrand != bBrand {
			return aBrand
		}
		ad, bd := pageDomain(a.URL), pageDomain(b.URL)
		if ad != bd {
			return ad < bd
		}
		return a.URL < b.URL
	})
	return pages
}

func pageDomain(rawURL string) string {
	origin := collector.Origin(rawURL)
	return strings.TrimPrefix(origin, "www.")
}
