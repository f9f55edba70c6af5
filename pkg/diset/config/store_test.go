package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DIRACGrid/diset/pkg/diset/config"
)

func TestWithStoreRoundTrips(t *testing.T) {
	s := config.NewYAMLStore(sampleTree(), "SiteA", false)
	ctx := config.WithStore(context.Background(), s)
	assert.Same(t, s, config.FromContext(ctx).(*config.YAMLStore))
}

func TestFromContextAbsent(t *testing.T) {
	assert.Nil(t, config.FromContext(context.Background()))
}

func TestSetupOverrideRoundTrips(t *testing.T) {
	ctx := config.WithSetupOverride(context.Background(), "Certification")
	s, ok := config.SetupOverrideFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "Certification", s)
}

func TestSetupOverrideAbsent(t *testing.T) {
	_, ok := config.SetupOverrideFromContext(context.Background())
	assert.False(t, ok)
}
