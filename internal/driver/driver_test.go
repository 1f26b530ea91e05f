package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionConfig_WithMethodsDoNotMutate(t *testing.T) {
	base := DefaultSessionConfig()

	headful := base.WithHeadless(false)
	resized := base.WithWindowSize(800, 600)
	slower := base.WithDefaultTimeout(time.Minute)

	assert.True(t, base.Headless, "base config is unchanged")
	assert.Equal(t, 1366, base.WindowWidth)
	assert.Equal(t, 30*time.Second, base.DefaultTimeout)

	assert.False(t, headful.Headless)
	assert.Equal(t, 800, resized.WindowWidth)
	assert.Equal(t, 600, resized.WindowHeight)
	assert.Equal(t, time.Minute, slower.DefaultTimeout)
}

func TestSessionConfig_WithMethodsChain(t *testing.T) {
	cfg := DefaultSessionConfig().
		WithHeadless(false).
		WithWindowSize(1024, 768).
		WithDefaultTimeout(10 * time.Second)

	assert.False(t, cfg.Headless)
	assert.Equal(t, 1024, cfg.WindowWidth)
	assert.Equal(t, 768, cfg.WindowHeight)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
}

func TestCriteria_String(t *testing.T) {
	assert.Equal(t, ".item", Criteria{Selector: ".item"}.String())
	assert.Equal(t, `.item (text ~ "Newest")`,
		Criteria{Selector: ".item", TextContains: "Newest"}.String())
}

func TestContainsFold(t *testing.T) {
	assert.True(t, containsFold("Sign In to Your Account", "sign in"))
	assert.True(t, containsFold("no-reply@site.test", "NO-REPLY"))
	assert.False(t, containsFold("Welcome", "sign in"))
}
