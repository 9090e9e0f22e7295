package collector

// SourceType splits classified pages into the two ratio-enforced pools.
type SourceType string

// Ownership buckets used by the ratio enforcer.
const (
	SourceBrandOwned SourceType = "brand_owned"
	SourceThirdParty SourceType = "third_party"
)

// Tier is the fine-grained classification bucket within a source type.
type Tier string

// Tier values, from most to least brand-controlled.
const (
	TierPrimaryWebsite Tier = "primary_website"
	TierBrandContent   Tier = "brand_content"
	TierNewsMedia      Tier = "news_media"
	TierUserGenerated  Tier = "user_generated"
	TierUnknown        Tier = "unknown"
)

// Classification is the verdict returned by the domain classifier.
type Classification struct {
	SourceType SourceType
	Tier       Tier
	CoreDomain bool
	Reason     string
}

// BrandOwned reports whether the classified URL belongs to the brand.
func (c Classification) BrandOwned() bool {
	return c.SourceType == SourceBrandOwned
}
