package codeforces

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Signer adds the apiKey, time and apiSig parameters of an authorized
// Codeforces request. Anonymous access needs no signer.
type Signer struct {
	key    string
	secret string
	rand   func() string
}

// NewSigner returns nil when either credential is missing.
func NewSigner(key, secret string) *Signer {
	if key == "" || secret == "" {
		return nil
	}
	return &Signer{key: key, secret: secret, rand: sixDigits}
}

// Sign returns a copy of params carrying the signature for method at now.
func (s *Signer) Sign(method string, params url.Values, now time.Time) url.Values {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = append([]string(nil), v...)
	}
	signed.Set("apiKey", s.key)
	signed.Set("time", strconv.FormatInt(now.Unix(), 10))

	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range signed {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}

	prefix := s.rand()
	sum := sha512.Sum512([]byte(fmt.Sprintf("%s/%s?%s#%s", prefix, method, strings.Join(parts, "&"), s.secret)))
	signed.Set("apiSig", prefix+hex.EncodeToString(sum[:]))
	return signed
}

func sixDigits() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "100000"
	}
	return strconv.FormatInt(n.Int64()+100000, 10)
}
