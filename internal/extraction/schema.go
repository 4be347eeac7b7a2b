package extraction

import (
	"encoding/json"
	"strings"
)

type PricingModel string

const (
	PricingFree         PricingModel = "free"
	PricingFreemium     PricingModel = "freemium"
	PricingFreeTrial    PricingModel = "free_trial"
	PricingSubscription PricingModel = "subscription"
	PricingOneTime      PricingModel = "one_time"
	PricingUsageBased   PricingModel = "usage_based"
	PricingPerSeat      PricingModel = "per_seat"
	PricingTiered       PricingModel = "tiered"
	PricingCustom       PricingModel = "custom"
	PricingUnknown      PricingModel = "unknown"
)

var pricingModels = map[PricingModel]struct{}{
	PricingFree: {}, PricingFreemium: {}, PricingFreeTrial: {}, PricingSubscription: {},
	PricingOneTime: {}, PricingUsageBased: {}, PricingPerSeat: {}, PricingTiered: {},
	PricingCustom: {}, PricingUnknown: {},
}

type PricingTier struct {
	Name          string   `json:"name"`
	Price         *string  `json:"price"`
	BillingPeriod *string  `json:"billing_period"`
	Features      []string `json:"features"`
}

type ProductFeature struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Benefit     *string `json:"benefit"`
	Category    *string `json:"category"`
}

type Differentiator struct {
	Aspect               string  `json:"aspect"`
	Description          string  `json:"description"`
	CompetitiveAdvantage *string `json:"competitive_advantage"`
}

// ProductInfo is the market-intel record the model fills from a homepage.
// Optional scalars are pointers so "not on the page" survives as null.
type ProductInfo struct {
	Name             string  `json:"name"`
	Tagline          *string `json:"tagline"`
	Description      *string `json:"description"`
	ValueProposition *string `json:"value_proposition"`

	PricingModel    PricingModel  `json:"pricing_model"`
	HasFreeTier     bool          `json:"has_free_tier"`
	HasFreeTrial    bool          `json:"has_free_trial"`
	TrialLengthDays *int          `json:"trial_length_days"`
	StartingPrice   *string       `json:"starting_price"`
	PricingTiers    []PricingTier `json:"pricing_tiers"`

	KeyFeatures            []string         `json:"key_features"`
	DetailedFeatures       []ProductFeature `json:"detailed_features"`
	CoreCapabilities       []string         `json:"core_capabilities"`
	AIFeatures             []string         `json:"ai_features"`
	AutomationCapabilities []string         `json:"automation_capabilities"`
	CollaborationFeatures  []string         `json:"collaboration_features"`
	SecurityFeatures       []string         `json:"security_features"`

	Differentiators        []Differentiator `json:"differentiators"`
	UniqueSellingPoints    []string         `json:"unique_selling_points"`
	CompetitivePositioning *string          `json:"competitive_positioning"`
	MentionedCompetitors   []string         `json:"mentioned_competitors"`

	Integrations          []string `json:"integrations"`
	IntegrationCategories []string `json:"integration_categories"`
	APIAvailable          bool     `json:"api_available"`
	Platforms             []string `json:"platforms"`

	TargetAudience    *string  `json:"target_audience"`
	TargetCompanySize []string `json:"target_company_size"`
	TargetRoles       []string `json:"target_roles"`
	UseCases          []string `json:"use_cases"`
	Industries        []string `json:"industries"`

	CompanyName  *string `json:"company_name"`
	FoundedYear  *int    `json:"founded_year"`
	Headquarters *string `json:"headquarters"`

	CustomerCount     *string  `json:"customer_count"`
	UserCount         *string  `json:"user_count"`
	NotableCustomers  []string `json:"notable_customers"`
	Testimonials      []string `json:"testimonials"`
	AwardsRecognition []string `json:"awards_recognition"`
}

// Normalize replaces nil lists with empty ones and maps an unrecognised
// pricing model to unknown.
func (p *ProductInfo) Normalize() {
	p.PricingModel = PricingModel(strings.ToLower(strings.TrimSpace(string(p.PricingModel))))
	if _, ok := pricingModels[p.PricingModel]; !ok {
		p.PricingModel = PricingUnknown
	}
	for _, l := range []*[]string{
		&p.KeyFeatures, &p.CoreCapabilities, &p.AIFeatures, &p.AutomationCapabilities,
		&p.CollaborationFeatures, &p.SecurityFeatures, &p.UniqueSellingPoints,
		&p.MentionedCompetitors, &p.Integrations, &p.IntegrationCategories, &p.Platforms,
		&p.TargetCompanySize, &p.TargetRoles, &p.UseCases, &p.Industries,
		&p.NotableCustomers, &p.Testimonials, &p.AwardsRecognition,
	} {
		if *l == nil {
			*l = []string{}
		}
	}
	if p.PricingTiers == nil {
		p.PricingTiers = []PricingTier{}
	}
	for i := range p.PricingTiers {
		if p.PricingTiers[i].Features == nil {
			p.PricingTiers[i].Features = []string{}
		}
	}
	if p.DetailedFeatures == nil {
		p.DetailedFeatures = []ProductFeature{}
	}
	if p.Differentiators == nil {
		p.Differentiators = []Differentiator{}
	}
}

// SchemaTemplate renders an empty ProductInfo as the JSON shape the model
// must answer with.
func SchemaTemplate() string {
	info := ProductInfo{}
	info.Normalize()
	b, _ := json.MarshalIndent(info, "", "  ")
	return string(b)
}
