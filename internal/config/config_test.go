package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	c := Config{}
	c.HTTP.Port = 8080
	c.Database.Addrs = []string{"localhost:6379"}
	c.ApplyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()

	if c.HTTP.QueryTimeoutSec != 15 {
		t.Errorf("query timeout = %d", c.HTTP.QueryTimeoutSec)
	}
	if c.Fusion.NameWeight != 0.9 || c.Fusion.TopicalWeight != 0.05 || c.Fusion.DamageWeight != 0.05 {
		t.Errorf("fusion weights = %+v", c.Fusion)
	}
	if c.Fusion.ScoreCutoff != 0.4 || c.Fusion.HardcodedCutoff != 0.6 {
		t.Errorf("cutoffs = %g / %g", c.Fusion.ScoreCutoff, c.Fusion.HardcodedCutoff)
	}
	if c.Fusion.HardcodedMatchThreshold != 0.85 {
		t.Errorf("hardcoded match threshold = %g", c.Fusion.HardcodedMatchThreshold)
	}
	if c.Fusion.TopN != 10 || c.Fusion.DownweightFactor != 0.8 {
		t.Errorf("fusion = %+v", c.Fusion)
	}
	if c.Fusion.DownweightSource != "community-answer" {
		t.Errorf("downweight source = %q", c.Fusion.DownweightSource)
	}
	if c.Retrieval.TopK != 10 || c.Retrieval.InnerK != 3 {
		t.Errorf("retrieval = %+v", c.Retrieval)
	}
}

func TestApplyDefaultsKeepsExplicitWeights(t *testing.T) {
	c := Config{}
	c.HTTP.Port = 8080
	c.Database.Addrs = []string{"localhost:6379"}
	c.Fusion.NameWeight = 0.5
	c.ApplyDefaults()

	// A partially set trio is explicit configuration, not "unset".
	if c.Fusion.NameWeight != 0.5 || c.Fusion.TopicalWeight != 0 {
		t.Errorf("weights overwritten: %+v", c.Fusion)
	}
}

func TestValidate(t *testing.T) {
	valid := validConfig()
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"no addrs", func(c *Config) { c.Database.Addrs = nil }},
		{"negative weight", func(c *Config) { c.Fusion.NameWeight = -1 }},
		{"downweight above one", func(c *Config) { c.Fusion.DownweightFactor = 2 }},
		{"threshold above one", func(c *Config) { c.Fusion.HardcodedMatchThreshold = 1.5 }},
		{"negative dimensions", func(c *Config) { c.Embedding.Dimensions = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PESTSEARCH_TEST_VAR", "hello")

	got := string(expandEnvVars([]byte("a: ${PESTSEARCH_TEST_VAR}")))
	if got != "a: hello" {
		t.Errorf("expanded = %q", got)
	}

	got = string(expandEnvVars([]byte("b: ${PESTSEARCH_UNSET_VAR:-fallback}")))
	if got != "b: fallback" {
		t.Errorf("default = %q", got)
	}

	got = string(expandEnvVars([]byte("c: ${PESTSEARCH_UNSET_VAR}")))
	if !strings.HasSuffix(got, ": ") {
		t.Errorf("unset without default = %q", got)
	}
}

func TestEmbeddingCacheDefault(t *testing.T) {
	var e EmbeddingConfig
	if !e.Cache() {
		t.Error("cache must default to enabled")
	}

	off := false
	e.CacheEnabled = &off
	if e.Cache() {
		t.Error("explicit false ignored")
	}
}
