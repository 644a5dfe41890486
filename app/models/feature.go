// Package models defines users, metered features, sessions and plans.
package models

import "strings"

// FreeQuota is the number of free uses or sessions granted per feature.
const FreeQuota = 3

type Feature string

const (
	FeatureEmotionDecoder    Feature = "emotion_decoder"
	FeatureBeliefDecoder     Feature = "belief_decoder"
	FeatureAllergyIdentifier Feature = "allergy_identifier"
)

// Features lists every metered feature in display order.
var Features = []Feature{
	FeatureEmotionDecoder,
	FeatureBeliefDecoder,
	FeatureAllergyIdentifier,
}

// ParseFeature accepts the canonical name and the hyphenated form.
func ParseFeature(s string) (Feature, bool) {
	f := Feature(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Features {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// ItemField is the request body field naming the processed item.
func (f Feature) ItemField() string {
	switch f {
	case FeatureEmotionDecoder:
		return "emotion"
	case FeatureBeliefDecoder:
		return "belief"
	case FeatureAllergyIdentifier:
		return "allergen"
	}
	return ""
}

// PremiumOnly reports whether the feature is unlimited only on the premium tier.
func (f Feature) PremiumOnly() bool {
	return f == FeatureBeliefDecoder || f == FeatureAllergyIdentifier
}

// BasicOrAbove reports whether any paid tier unlocks the feature.
func (f Feature) BasicOrAbove() bool {
	return f == FeatureEmotionDecoder
}

// Column is the users table counter backing the feature.
func (f Feature) Column() string {
	switch f {
	case FeatureEmotionDecoder:
		return "emotion_usage"
	case FeatureBeliefDecoder:
		return "belief_usage"
	case FeatureAllergyIdentifier:
		return "allergy_usage"
	}
	return ""
}

// Slug is the URL path segment for the feature.
func (f Feature) Slug() string {
	return strings.ReplaceAll(string(f), "_", "-")
}
