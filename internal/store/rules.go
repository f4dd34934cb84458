package store

import "strings"

const (
	ClaimTypeATM      = "atm"
	ClaimTypePayment  = "payment"
	ClaimTypePurchase = "purchase"
)

const (
	atmServicesCategoryID       = "cmekrqi3t001ghlusklheksqz"
	transactionClaimsCategoryID = "cmekrqi45001qhluspcsta20x"
)

// ClaimTypeRule matches a ticket when its category is listed and any
// keyword occurs in the service name or title. An empty list matches anything.
type ClaimTypeRule struct {
	CategoryIDs []string `yaml:"category_ids"`
	Keywords    []string `yaml:"keywords"`
}

type ClaimRules struct {
	Types                   map[string]ClaimTypeRule `yaml:"claim_types"`
	ServicePatterns         []string                 `yaml:"atm_claim_service_patterns"`
	SystemWideSupportGroups []string                 `yaml:"system_wide_support_groups"`
	ReportCategoryNames     []string                 `yaml:"report_category_names"`
	ReportServiceKeywords   []string                 `yaml:"report_service_keywords"`
}

func DefaultClaimRules() ClaimRules {
	return ClaimRules{
		Types: map[string]ClaimTypeRule{
			ClaimTypeATM: {
				CategoryIDs: []string{atmServicesCategoryID, transactionClaimsCategoryID},
				Keywords:    []string{"atm", "penarikan tunai", "tarik tunai"},
			},
			ClaimTypePayment: {
				CategoryIDs: []string{transactionClaimsCategoryID},
				Keywords:    []string{"payment", "pembayaran", "bayar"},
			},
			ClaimTypePurchase: {
				CategoryIDs: []string{transactionClaimsCategoryID},
				Keywords:    []string{"purchase", "pembelian", "beli"},
			},
		},
		ServicePatterns:         []string{"%atm%claim%", "%atm%klaim%", "%klaim%atm%", "%penarikan tunai%"},
		SystemWideSupportGroups: []string{SupportGroupCallCenter, SupportGroupTransactionClaims},
		ReportCategoryNames:     []string{"Transaction Claim"},
		ReportServiceKeywords:   []string{"claim", "klaim"},
	}
}

// Merge overlays the non-empty parts of other onto r.
func (r ClaimRules) Merge(other ClaimRules) ClaimRules {
	merged := r
	if len(other.Types) > 0 {
		merged.Types = make(map[string]ClaimTypeRule, len(r.Types)+len(other.Types))
		for key, rule := range r.Types {
			merged.Types[key] = rule
		}
		for key, rule := range other.Types {
			merged.Types[strings.ToLower(key)] = rule
		}
	}
	if len(other.ServicePatterns) > 0 {
		merged.ServicePatterns = other.ServicePatterns
	}
	if len(other.SystemWideSupportGroups) > 0 {
		merged.SystemWideSupportGroups = other.SystemWideSupportGroups
	}
	if len(other.ReportCategoryNames) > 0 {
		merged.ReportCategoryNames = other.ReportCategoryNames
	}
	if len(other.ReportServiceKeywords) > 0 {
		merged.ReportServiceKeywords = other.ReportServiceKeywords
	}
	return merged
}

// Rule returns the rule for a claim type, falling back to ATM claims.
func (r ClaimRules) Rule(claimType string) (ClaimTypeRule, string) {
	key := strings.ToLower(strings.TrimSpace(claimType))
	if rule, ok := r.Types[key]; ok {
		return rule, key
	}
	return r.Types[ClaimTypeATM], ClaimTypeATM
}

func (rule ClaimTypeRule) Matches(categoryID, serviceName, title string) bool {
	if len(rule.CategoryIDs) > 0 && !containsString(rule.CategoryIDs, categoryID) {
		return false
	}
	if len(rule.Keywords) == 0 {
		return true
	}
	name := strings.ToLower(serviceName)
	subject := strings.ToLower(title)
	for _, keyword := range rule.Keywords {
		keyword = strings.ToLower(keyword)
		if strings.Contains(name, keyword) || strings.Contains(subject, keyword) {
			return true
		}
	}
	return false
}

// IsClaim reports whether a ticket falls under any configured claim type.
func (r ClaimRules) IsClaim(access TicketAccess) bool {
	for _, rule := range r.Types {
		if rule.Matches(access.CategoryID, access.ServiceName, access.Title) {
			return true
		}
	}
	return false
}

func containsString(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
