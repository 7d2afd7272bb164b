// Package address normalises e-mail identities for rate limiting.
//
// Known providers treat many spellings of a local part as the same mailbox
// (GMail ignores dots and everything after a plus), so addresses at
// whitelisted domains are canonicalised before counting. Addresses at
// unknown domains may come from disposable-address services, so the whole
// domain shares a single counter.
package address

import (
	"fmt"
	"strings"
)

// Separate splits an address into its local part and domain.
func Separate(addr string) (local, domain string, err error) {
	parts := strings.Split(addr, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed address %q", addr)
	}
	return parts[0], strings.ToLower(parts[1]), nil
}

// IsValidLocal reports whether the local part uses only characters we accept.
func IsValidLocal(local string) bool {
	if local == "" {
		return false
	}
	first := rune(local[0])
	if !isAlnum(first) {
		return false
	}
	for _, ch := range local {
		if !isAlnum(ch) && ch != '+' && ch != '-' && ch != '.' && ch != '_' {
			return false
		}
	}
	return true
}

func isAlnum(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// NormaliseLocal canonicalises a local part: the `+tag` suffix is stripped
// and dots are removed, so a.b+x@gmail.com and ab@gmail.com count together.
func NormaliseLocal(local string) string {
	if i := strings.IndexByte(local, '+'); i != -1 {
		local = local[:i]
	}
	return strings.ToLower(strings.ReplaceAll(local, ".", ""))
}

// ReversedDomain reverses the dot-separated labels of a domain
// ("gmail.com" -> "com.gmail") so related keys sort together.
func ReversedDomain(domain string) string {
	labels := strings.Split(domain, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, ".")
}

// CounterKey derives the rate-limiting counter key for an address. known
// reports whether the domain belongs to a whitelisted provider; unknown
// domains are rate-limited collectively, ignoring the local part.
func CounterKey(addr string) (key string, known bool, err error) {
	local, domain, err := Separate(addr)
	if err != nil {
		return "", false, err
	}

	rdomain, ok := whitedict[domain]
	if !ok {
		return fmt.Sprintf("email.rate_limiting.counter.nolocal.(%s)", ReversedDomain(domain)), false, nil
	}
	return fmt.Sprintf("email.rate_limiting.counter.complete.(%s).(%s)", rdomain, NormaliseLocal(local)), true, nil
}
