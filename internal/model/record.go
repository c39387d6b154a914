package model

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SourceType tells which pipeline branch produced a ScrapedRecord.
type SourceType string

const (
	SourceCompanyWebsite SourceType = "company-website"
	SourcePortal         SourceType = "portal"
	SourceRegistry       SourceType = "registry"
	SourceOther          SourceType = "other"
)

// ContactDetails groups the contact data extracted for one business.
// Emails and Phones behave as sets; Merge preserves that.
type ContactDetails struct {
	Emails  []string `json:"emails"`
	Phones  []string `json:"phones"`
	Address string   `json:"address"`
}

// HasAny reports whether at least one email or phone is present.
func (c ContactDetails) HasAny() bool {
	return len(c.Emails) > 0 || len(c.Phones) > 0
}

// Merge unions other's emails and phones into c without duplicates and
// fills the address if c has none.
func (c *ContactDetails) Merge(other ContactDetails) {
	c.Emails = unionStrings(c.Emails, other.Emails)
	c.Phones = unionStrings(c.Phones, other.Phones)
	if c.Address == "" {
		c.Address = other.Address
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lst := range [][]string{a, b} {
		for _, s := range lst {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// ScrapedRecord is one discovered business entity with provenance.
type ScrapedRecord struct {
	CompanyName    string         `json:"companyName,omitempty"`
	Description    string         `json:"description,omitempty"`
	SourceURL      string         `json:"sourceUrl"`
	SourceType     SourceType     `json:"sourceType"`
	ContactDetails ContactDetails `json:"contactDetails"`
	PKDPrimary     string         `json:"pkdPrimary,omitempty"`
	PKDCodes       []string       `json:"pkdCodes,omitempty"`
	RegistryID     string         `json:"registryId,omitempty"`
}

// legalSuffixRe strips trailing Polish legal-form suffixes so that
// "Brukpol Sp. z o.o." and "Brukpol" compare equal.
var legalSuffixRe = regexp.MustCompile(`(?i)\s*(sp\.?\s*z\s*o\.?\s*o\.?|sp\.?\s*j\.?|s\.?\s*c\.?|s\.?a\.?|fhu|phu|zakład usługowy|firma handlowo[- ]usługowa)\s*$`)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeCompanyName folds diacritics, lowercases, strips legal-form
// suffixes and punctuation, and collapses whitespace. Used as the fuzzy
// identity key during aggregation; empty input yields empty output.
func NormalizeCompanyName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if folded, _, err := transform.String(foldTransformer, name); err == nil {
		name = folded
	}
	name = strings.ToLower(name)
	name = legalSuffixRe.ReplaceAllString(name, "")
	name = nonAlnumRe.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(name), " ")
}

// SameEntity applies the aggregation matching heuristic: two records are
// considered the same business when their normalized names match, or when
// they share at least one email or phone. There is no single authoritative
// join key across sources, so this is intentionally fuzzy.
func SameEntity(a, b ScrapedRecord) bool {
	if a.RegistryID != "" && a.RegistryID == b.RegistryID {
		return true
	}
	na, nb := NormalizeCompanyName(a.CompanyName), NormalizeCompanyName(b.CompanyName)
	if na != "" && na == nb {
		return true
	}
	return overlaps(a.ContactDetails.Emails, b.ContactDetails.Emails) ||
		overlaps(a.ContactDetails.Phones, b.ContactDetails.Phones)
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
