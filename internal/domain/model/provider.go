package model

import "strings"

// Provider identifies an external advertising platform.
type Provider string

const (
	ProviderMeta   Provider = "meta"
	ProviderTikTok Provider = "tiktok"
)

// Providers returns every supported provider in display order. The set is
// closed: adding a platform means adding a constant here and an adapter that
// reports it.
func Providers() []Provider {
	return []Provider{ProviderMeta, ProviderTikTok}
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderMeta, ProviderTikTok:
		return true
	}
	return false
}

// DisplayName returns the human-readable platform name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderMeta:
		return "Meta"
	case ProviderTikTok:
		return "TikTok"
	}
	return string(p)
}

// ParseProvider normalizes raw (case and surrounding whitespace) and returns the
// matching Provider, or an *UnsupportedProviderError.
func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", &UnsupportedProviderError{Provider: raw}
	}
	return p, nil
}
