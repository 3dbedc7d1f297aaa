package repositories

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string {
	return &s
}

func keysOverlap(a, b []string) bool {
	for _, ka := range a {
		for _, kb := range b {
			if ka == kb {
				return true
			}
		}
	}
	return false
}

func TestIdentityLockKeys_SharedDimensionContends(t *testing.T) {
	// Same address, different usernames: both attempts count into the same
	// pool via the address, so they must share a lock.
	alice := identityLockKeys(ptr("alice"), ptr("203.0.113.9"))
	bob := identityLockKeys(ptr("bob"), ptr("203.0.113.9"))
	assert.True(t, keysOverlap(alice, bob))

	// Same username, different addresses.
	home := identityLockKeys(ptr("alice"), ptr("203.0.113.9"))
	office := identityLockKeys(ptr("alice"), ptr("198.51.100.4"))
	assert.True(t, keysOverlap(home, office))

	// Disjoint identities must not contend.
	other := identityLockKeys(ptr("carol"), ptr("192.0.2.1"))
	assert.False(t, keysOverlap(alice, other))
}

func TestIdentityLockKeys_NilDimensions(t *testing.T) {
	// Two fully anonymous attempts pool together and must serialize.
	anonA := identityLockKeys(nil, nil)
	anonB := identityLockKeys(nil, nil)
	assert.Equal(t, anonA, anonB)

	// The placeholder never collides with a real value.
	named := identityLockKeys(ptr("alice"), ptr("203.0.113.9"))
	assert.False(t, keysOverlap(anonA, named))

	// The same literal in different dimensions stays apart: ("x", nil) and
	// (nil, "x") do not pool together and must not share a value lock.
	userOnly := identityLockKeys(ptr("x"), nil)
	addrOnly := identityLockKeys(nil, ptr("x"))
	assert.Contains(t, userOnly, "login_attempt:user:x")
	assert.Contains(t, addrOnly, "login_attempt:ip:x")
	assert.NotContains(t, addrOnly, "login_attempt:user:x")
	assert.NotContains(t, userOnly, "login_attempt:ip:x")
}

func TestIdentityLockKeys_StableAcquisitionOrder(t *testing.T) {
	// Every caller must acquire the locks in the same order or two holders
	// could deadlock against each other.
	for _, keys := range [][]string{
		identityLockKeys(ptr("alice"), ptr("203.0.113.9")),
		identityLockKeys(ptr("zz"), ptr("10.0.0.1")),
		identityLockKeys(nil, ptr("10.0.0.1")),
		identityLockKeys(ptr("alice"), nil),
	} {
		assert.Len(t, keys, 2)
		assert.True(t, sort.StringsAreSorted(keys))
	}
}
