package ipfsurl

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

const cid = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical unchanged", "https://ipfs.io/ipfs/" + cid, "https://ipfs.io/ipfs/" + cid},
		{"proxy asset", "https://viraltok.app/api/ipfs/asset/" + cid, "https://ipfs.io/ipfs/" + cid},
		{"relative proxy asset", "/api/ipfs/asset/" + cid, "https://ipfs.io/ipfs/" + cid},
		{"other gateway", "https://cf-ipfs.com/ipfs/" + cid, "https://ipfs.io/ipfs/" + cid},
		{"ipfs scheme", "ipfs://" + cid, "https://ipfs.io/ipfs/" + cid},
		{"storage mirror", "https://viralitok.supabase.co/storage/v1/" + cid, "https://ipfs.io/ipfs/" + cid},
		{"bare cid", cid, "https://ipfs.io/ipfs/" + cid},
		{"unrelated url", "https://example.com/cat.png", "https://example.com/cat.png"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestCIDReportsRule(t *testing.T) {
	n := New("")
	got, rule, ok := n.CID("https://host/api/ipfs/asset/" + cid)
	assert.True(t, ok)
	assert.Equal(t, cid, got)
	assert.Equal(t, "proxy-asset", rule)

	got, rule, ok = n.CID("https://ipfs.io/ipfs/" + cid + "?filename=a.png")
	assert.True(t, ok)
	assert.Equal(t, cid, got)
	assert.Equal(t, "canonical", rule)

	_, _, ok = n.CID("https://example.com/nothing")
	assert.False(t, ok)
}

func TestCustomGatewayAndRules(t *testing.T) {
	n := New("https://gateway.pinata.cloud/ipfs", Rule{
		Name:    "cdn",
		Pattern: regexp.MustCompile(`cdn\.example\.com/c/([a-zA-Z0-9]+)`),
	})
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/", n.Gateway())
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/abc123", n.Normalize("https://cdn.example.com/c/abc123"))
	// Default rules are replaced, not extended.
	assert.Equal(t, "https://ipfs.io/ipfs/"+cid, n.Normalize("https://ipfs.io/ipfs/"+cid))
	assert.True(t, n.IsCanonical("https://gateway.pinata.cloud/ipfs/x"))
}
