package normalize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Normalizer rewrites domain jargon to canonical synonyms before embedding.
// With no synonym map it is a pass-through.
type Normalizer struct {
	synonyms map[string]string // lowercased token -> canonical form
}

// NewNormalizer creates a normalizer over a prebuilt synonym map.
func NewNormalizer(synonyms map[string]string) *Normalizer {
	lowered := make(map[string]string, len(synonyms))
	for k, v := range synonyms {
		lowered[strings.ToLower(k)] = v
	}
	return &Normalizer{synonyms: lowered}
}

// Load reads the synonym map from a YAML resource. A load failure degrades to
// identity normalization; the warning is logged here, once, at startup.
func Load(path string, logger *zap.Logger) *Normalizer {
	synonyms, err := loadSynonyms(path)
	if err != nil {
		logger.Warn("Synonym map unavailable, normalization degrades to pass-through",
			zap.String("path", path), zap.Error(err))
		return &Normalizer{}
	}
	return NewNormalizer(synonyms)
}

// synonymFile is the YAML shape of the synonym resource.
type synonymFile struct {
	Synonyms map[string]string `yaml:"synonyms"`
}

func loadSynonyms(path string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}
	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse synonyms: %w", err)
	}
	return f.Synonyms, nil
}

// Normalize replaces jargon tokens with canonical forms, case-insensitively,
// preserving the original inter-token whitespace. Pure over the preloaded map.
func (n *Normalizer) Normalize(text string) string {
	if len(n.synonyms) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	rest := text
	for len(rest) > 0 {
		ws := takeWhile(rest, unicode.IsSpace)
		b.WriteString(ws)
		rest = rest[len(ws):]

		token := takeWhile(rest, func(r rune) bool { return !unicode.IsSpace(r) })
		b.WriteString(n.replaceToken(token))
		rest = rest[len(token):]
	}

	return b.String()
}

// replaceToken swaps a token for its canonical synonym, tolerating trailing
// punctuation like "greenfly," or "greenfly?".
func (n *Normalizer) replaceToken(token string) string {
	if canon, ok := n.synonyms[strings.ToLower(token)]; ok {
		return canon
	}

	trimmed := strings.TrimRightFunc(token, unicode.IsPunct)
	if trimmed == token || trimmed == "" {
		return token
	}
	if canon, ok := n.synonyms[strings.ToLower(trimmed)]; ok {
		return canon + token[len(trimmed):]
	}
	return token
}

// takeWhile returns the longest prefix of s whose runes satisfy pred.
func takeWhile(s string, pred func(rune) bool) string {
	for i, r := range s {
		if !pred(r) {
			return s[:i]
		}
	}
	return s
}
