package translation

import (
	"sort"
	"strings"

	"horse.fit/transync/internal/language"
)

// languageMap translates between local language codes and the codes the
// provider uses. Codes without an entry pass through unchanged.
type languageMap struct {
	toRemote map[string]string
	toLocal  map[string]string
}

func newLanguageMap(pairs map[string]string) languageMap {
	out := languageMap{
		toRemote: make(map[string]string, len(pairs)),
		toLocal:  make(map[string]string, len(pairs)),
	}

	locals := make([]string, 0, len(pairs))
	for local := range pairs {
		locals = append(locals, local)
	}
	sort.Strings(locals)

	for _, local := range locals {
		normalizedLocal := normalizeLangCode(local)
		remote := normalizeLangCode(pairs[local])
		if normalizedLocal == "" || remote == "" {
			continue
		}
		out.toRemote[normalizedLocal] = remote
		if _, exists := out.toLocal[remote]; !exists {
			out.toLocal[remote] = normalizedLocal
		}
	}
	return out
}

func (l languageMap) remote(code string) string {
	normalized := normalizeLangCode(code)
	if mapped, ok := l.toRemote[normalized]; ok {
		return mapped
	}
	return normalized
}

func (l languageMap) local(code string) string {
	normalized := normalizeLangCode(code)
	if mapped, ok := l.toLocal[normalized]; ok {
		return mapped
	}
	return normalized
}

// normalizeLangCode falls back to a plain lowercase form for codes that are
// not well-formed tags, so they still reach the provider untouched.
func normalizeLangCode(code string) string {
	if tag := language.NormalizeTag(code); tag != "" {
		return tag
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "_", "-")
}
