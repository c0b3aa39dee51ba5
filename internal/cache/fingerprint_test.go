package cache_test

import (
	"testing"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/stretchr/testify/assert"
)

func Test_Fingerprint_Deterministic(t *testing.T) {
	locator := "https://cdn.example.com/art/submission-123.png"

	assert.Equal(t, cache.Fingerprint(locator), cache.Fingerprint(locator))
}

func Test_Fingerprint_DistinctLocators(t *testing.T) {
	assert.NotEqual(t,
		cache.Fingerprint("https://cdn.example.com/a"),
		cache.Fingerprint("https://cdn.example.com/b"),
	)
}

func Test_Fingerprint_HexFilenameSafe(t *testing.T) {
	fingerprint := cache.Fingerprint("https://cdn.example.com/media?id=1&size=full")

	assert.Len(t, fingerprint, 64)
	assert.Regexp(t, "^[0-9a-f]+$", fingerprint)
}
