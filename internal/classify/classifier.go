// Package classify assigns URLs to ownership tiers for the ratio
// enforcer: brand-owned properties vs third-party coverage.
package classify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/brandsignal/harvester/internal/collector"
)

// Config enumerates the hosts that count as brand property.
type Config struct {
	// BrandDomains are the brand's core domains (e.g. "nike.com").
	// Matches, including "www." and subdomains, are brand-owned.
	BrandDomains []string
	// BrandHosts are additional brand-controlled hosts that are not
	// subdomains of a core domain (e.g. a separate content hub).
	BrandHosts []string
	// SocialHandles are the brand's handles on social platforms; a
	// social profile URL whose first path segment matches one counts
	// as a brand content channel.
	SocialHandles []string
	// NewsHosts are hosts classified as news media coverage.
	NewsHosts []string
}

var socialHosts = map[string]struct{}{
	"facebook.com":  {},
	"instagram.com": {},
	"twitter.com":   {},
	"x.com":         {},
	"youtube.com":   {},
	"tiktok.com":    {},
	"linkedin.com":  {},
	"pinterest.com": {},
}

var userGeneratedHosts = map[string]struct{}{
	"reddit.com":     {},
	"quora.com":      {},
	"medium.com":     {},
	"trustpilot.com": {},
	"yelp.com":       {},
}

// Classifier implements collector.Classifier from static host lists.
type Classifier struct {
	coreDomains map[string]struct{}
	brandHosts  map[string]struct{}
	handles     map[string]struct{}
	newsHosts   map[string]struct{}
}

// New builds a Classifier from config. Host entries are normalized to
// lowercase with any "www." prefix removed.
func New(cfg Config) *Classifier {
	c := &Classifier{
		coreDomains: hostSet(cfg.BrandDomains),
		brandHosts:  hostSet(cfg.BrandHosts),
		handles:     make(map[string]struct{}, len(cfg.SocialHandles)),
		newsHosts:   hostSet(cfg.NewsHosts),
	}
	for _, handle := range cfg.SocialHandles {
		handle = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
		if handle != "" {
			c.handles[handle] = struct{}{}
		}
	}
	return c
}

// Classify returns the tier verdict for a URL. Unparseable URLs come
// back as third-party/unknown.
func (c *Classifier) Classify(rawURL string) collector.Classification {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return collector.Classification{
			SourceType: collector.SourceThirdParty,
			Tier:       collector.TierUnknown,
			Reason:     "unparseable url",
		}
	}
	host := bareHost(u.Host)

	if _, ok := c.coreDomains[host]; ok {
		return collector.Classification{
			SourceType: collector.SourceBrandOwned,
			Tier:       collector.TierPrimaryWebsite,
			CoreDomain: true,
			Reason:     fmt.Sprintf("core brand domain %s", host),
		}
	}
	for domain := range c.coreDomains {
		if strings.HasSuffix(host, "."+domain) {
			return collector.Classification{
				SourceType: collector.SourceBrandOwned,
				Tier:       collector.TierBrandContent,
				Reason:     fmt.Sprintf("subdomain of brand domain %s", domain),
			}
		}
	}
	if _, ok := c.brandHosts[host]; ok {
		return collector.Classification{
			SourceType: collector.SourceBrandOwned,
			Tier:       collector.TierBrandContent,
			Reason:     fmt.Sprintf("configured brand host %s", host),
		}
	}

	if _, ok := socialHosts[host]; ok {
		if c.matchesHandle(u.Path) {
			return collector.Classification{
				SourceType: collector.SourceBrandOwned,
				Tier:       collector.TierBrandContent,
				Reason:     fmt.Sprintf("brand social profile on %s", host),
			}
		}
		return collector.Classification{
			SourceType: collector.SourceThirdParty,
			Tier:       collector.TierUserGenerated,
			Reason:     fmt.Sprintf("social platform %s", host),
		}
	}

	if _, ok := c.newsHosts[host]; ok {
		return collector.Classification{
			SourceType: collector.SourceThirdParty,
			Tier:       collector.TierNewsMedia,
			Reason:     fmt.Sprintf("news host %s", host),
		}
	}
	if _, ok := userGeneratedHosts[host]; ok {
		return collector.Classification{
			SourceType: collector.SourceThirdParty,
			Tier:       collector.TierUserGenerated,
			Reason:     fmt.Sprintf("user-generated platform %s", host),
		}
	}

	return collector.Classification{
		SourceType: collector.SourceThirdParty,
		Tier:       collector.TierUnknown,
		Reason:     fmt.Sprintf("unrecognized host %s", host),
	}
}

func (c *Classifier) matchesHandle(path string) bool {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return false
	}
	first := strings.ToLower(strings.TrimPrefix(segments[0], "@"))
	_, ok := c.handles[first]
	return ok
}

func hostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = bareHost(strings.ToLower(strings.TrimSpace(h)))
		if h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}

func bareHost(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}
