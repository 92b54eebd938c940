// Package ipfsurl rewrites the many shapes an IPFS content link arrives in
// (proxy paths, gateway hosts, storage mirrors, bare CIDs) into one canonical
// gateway URL.
package ipfsurl

import (
	"regexp"
	"strings"
)

// DefaultGateway is the canonical content URL prefix.
const DefaultGateway = "https://ipfs.io/ipfs/"

// Rule extracts a CID from a URL. The first capture group of Pattern is the CID.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRules are tried in order; the first match wins. The proxy asset rule
// must precede the generic /ipfs/ path rule, which would otherwise capture "asset".
func DefaultRules() []Rule {
	return []Rule{
		{Name: "proxy-asset", Pattern: regexp.MustCompile(`/api/ipfs/asset/(Qm[a-zA-Z0-9]+)`)},
		{Name: "ipfs-scheme", Pattern: regexp.MustCompile(`^ipfs://(?:ipfs/)?([a-zA-Z0-9]+)`)},
		{Name: "gateway-path", Pattern: regexp.MustCompile(`/ipfs/([a-zA-Z0-9]+)`)},
		{Name: "storage-mirror", Pattern: regexp.MustCompile(`viralitok[^/]+/[^/]+/[^/]+/(Qm[a-zA-Z0-9]+)`)},
		{Name: "bare-cid", Pattern: regexp.MustCompile(`(Qm[a-zA-Z0-9]{44,})`)},
	}
}

// Normalizer maps content links to gateway + CID.
type Normalizer struct {
	gateway string
	rules   []Rule
}

// New builds a Normalizer. Empty gateway selects DefaultGateway; no rules selects DefaultRules.
func New(gateway string, rules ...Rule) *Normalizer {
	if gateway == "" {
		gateway = DefaultGateway
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Normalizer{gateway: gateway, rules: rules}
}

// Gateway returns the canonical prefix.
func (n *Normalizer) Gateway() string {
	return n.gateway
}

// CID extracts the content identifier and the name of the rule that found it.
func (n *Normalizer) CID(raw string) (cid, rule string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	if strings.HasPrefix(raw, n.gateway) {
		rest := strings.TrimPrefix(raw, n.gateway)
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			rest = rest[:i]
		}
		return rest, "canonical", rest != ""
	}
	for _, r := range n.rules {
		if m := r.Pattern.FindStringSubmatch(raw); len(m) > 1 && m[1] != "" {
			return m[1], r.Name, true
		}
	}
	return "", "", false
}

// Normalize returns the canonical URL for raw, raw itself when it is already
// canonical, or raw unchanged when no rule applies.
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, n.gateway) {
		return raw
	}
	cid, _, ok := n.CID(raw)
	if !ok {
		return raw
	}
	return n.gateway + cid
}

// IsCanonical reports whether raw already points at the gateway.
func (n *Normalizer) IsCanonical(raw string) bool {
	return strings.HasPrefix(raw, n.gateway)
}

var defaultNormalizer = New(DefaultGateway)

// Normalize uses the default gateway and rules.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}
