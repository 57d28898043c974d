// Package normalize translates a caller's language and voice request into
// provider-native synthesis parameters.
//
// Voice resolution runs four steps and stops at the first hit:
//
//  1. Exact: the requested voice equals a catalogue ID or name
//     (case-insensitive).
//  2. Alias: the language selects an ordered list of preferred voice
//     fragments from the provider's alias table; the first fragment found in
//     the catalogue wins. Fragments are compared with punctuation and case
//     removed, so "sinji" matches "Sin-ji".
//  3. Heuristic: the requested voice as a substring of a catalogue entry,
//     then Jaro-Winkler similarity, then the provider's language family hints.
//  4. Default: no voice. The provider picks its own default.
//
// The language is mapped independently through the provider's language map.
package normalize

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/azure"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/espeak"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/gtts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/polly"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/system"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/watson"
)

// SimilarityThreshold is the minimum Jaro-Winkler score for a fuzzy voice
// match.
const SimilarityThreshold = 0.92

// Step names the resolution step that produced a voice.
type Step string

const (
	StepExact     Step = "exact"
	StepAlias     Step = "alias"
	StepHeuristic Step = "heuristic"
	StepDefault   Step = "default"
)

// Params is the normalized, provider-native argument set.
type Params struct {
	// Voice is the catalogue voice ID, or empty for the provider default.
	Voice string

	// Language is the provider-native language code.
	Language string

	// Step records how Voice was chosen.
	Step Step
}

// Table holds the per-provider normalization data.
type Table struct {
	// Aliases maps a lower-case language tag to preferred voice fragments,
	// most preferred first.
	Aliases map[string][]string

	// Families maps a lower-case language tag to fragments that identify any
	// voice of the same language family. Used as the last heuristic.
	Families map[string][]string

	// Languages maps a lower-case language tag to the provider-native code.
	Languages map[string]string

	// CanonicalCase rewrites unmapped tags to BCP-47 casing ("zh-HK").
	CanonicalCase bool
}

var chineseFamily = []string{"chinese", "zh_", "zh-", "tingting", "sinji", "meijia", "cantonese", "mandarin"}

// Tables is the built-in table set keyed by provider ID.
var Tables = map[string]Table{
	system.ID: {
		Aliases: map[string][]string{
			"yue":       {"sinji", "zh_hk"},
			"zh-hk":     {"sinji", "zh_hk"},
			"cantonese": {"sinji", "zh_hk"},
			"zh-cn":     {"tingting", "zh_cn"},
			"zh-tw":     {"meijia", "zh_tw"},
			"zh":        {"tingting", "zh_cn"},
			"chinese":   {"tingting", "zh_cn"},
		},
		Families: familyOf(chineseFamily, "yue", "zh-hk", "cantonese", "zh-cn", "zh-tw", "zh", "chinese"),
	},
	espeak.ID: {
		Aliases: map[string][]string{
			"en":        {"en-us", "en"},
			"en-gb":     {"en-gb", "en"},
			"es":        {"es"},
			"fr":        {"fr-fr", "fr"},
			"de":        {"de"},
			"it":        {"it"},
			"pt":        {"pt-br", "pt"},
			"ru":        {"ru"},
			"zh":        {"cmn", "zh"},
			"zh-cn":     {"cmn", "zh"},
			"zh-tw":     {"cmn-latn-pinyin", "cmn"},
			"yue":       {"yue", "zhy"},
			"zh-hk":     {"yue", "zhy"},
			"cantonese": {"yue", "zhy"},
		},
		Families: familyOf([]string{"cmn", "yue", "zh"}, "zh", "zh-cn", "zh-tw", "yue", "zh-hk", "cantonese"),
	},
	gtts.ID: {
		Languages: map[string]string{
			"zh-hk":     "yue",
			"zh-yue":    "yue",
			"cantonese": "yue",
			"zh-cn":     "zh-CN",
			"zh-tw":     "zh-TW",
			"zh":        "zh",
			"chinese":   "zh",
		},
	},
	azure.ID: {
		Aliases:       fromVoiceTable(azure.DefaultVoices),
		CanonicalCase: true,
	},
	polly.ID: {
		Aliases: fromVoiceTable(polly.DefaultVoices),
	},
	watson.ID: {
		Aliases: fromVoiceTable(watson.DefaultVoices),
	},
}

// Normalize resolves voice and language for providerID against the given
// catalogue. It never fails; an unresolvable voice yields [StepDefault].
func Normalize(providerID, language, voice string, catalogue []tts.Voice) Params {
	return NormalizeWith(Tables[providerID], language, voice, catalogue)
}

// NormalizeWith is [Normalize] with an explicit table.
func NormalizeWith(t Table, language, voice string, catalogue []tts.Voice) Params {
	p := Params{Language: t.mapLanguage(language), Step: StepDefault}
	voice = strings.TrimSpace(voice)
	lang := normTag(language)

	// 1. Exact.
	if voice != "" {
		for _, v := range catalogue {
			if strings.EqualFold(v.ID, voice) || strings.EqualFold(v.Name, voice) {
				p.Voice, p.Step = v.ID, StepExact
				return p
			}
		}
	}

	// 2. Alias table.
	if lang != "" {
		for _, frag := range lookupTag(t.Aliases, lang) {
			if v, ok := findFragment(catalogue, frag); ok {
				p.Voice, p.Step = v.ID, StepAlias
				return p
			}
		}
	}

	// 3. Heuristics.
	if voice != "" {
		if v, ok := findSubstring(catalogue, voice); ok {
			p.Voice, p.Step = v.ID, StepHeuristic
			return p
		}
		if v, ok := mostSimilar(catalogue, voice); ok {
			p.Voice, p.Step = v.ID, StepHeuristic
			return p
		}
	}
	if lang != "" {
		for _, frag := range lookupTag(t.Families, lang) {
			if v, ok := findFragment(catalogue, frag); ok {
				p.Voice, p.Step = v.ID, StepHeuristic
				return p
			}
		}
	}

	return p
}

// mapLanguage returns the provider-native language code.
func (t Table) mapLanguage(language string) string {
	language = strings.TrimSpace(language)
	if native, ok := t.Languages[normTag(language)]; ok {
		return native
	}
	if t.CanonicalCase {
		return CanonicalTag(language)
	}
	return language
}

// CanonicalTag rewrites a language tag to BCP-47 casing: lower-case primary
// subtag, upper-case two-letter region, title-case four-letter script.
// Underscores are accepted as separators.
func CanonicalTag(tag string) string {
	parts := strings.Split(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"), "-")
	for i, s := range parts {
		switch {
		case i == 0:
			parts[i] = strings.ToLower(s)
		case len(s) == 2:
			parts[i] = strings.ToUpper(s)
		case len(s) == 4:
			parts[i] = strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
		default:
			parts[i] = strings.ToLower(s)
		}
	}
	return strings.Join(parts, "-")
}

// findFragment returns the first catalogue voice matching frag once
// punctuation and case are removed. A language tag equal to frag wins over a
// name match. Fragments shorter than four characters must equal a whole token
// of the ID or name ("yue" matches "sit/yue" but not "Yuenan").
func findFragment(catalogue []tts.Voice, frag string) (tts.Voice, bool) {
	f := squash(frag)
	if f == "" {
		return tts.Voice{}, false
	}
	for _, v := range catalogue {
		for _, l := range v.Languages {
			if squash(l) == f {
				return v, true
			}
		}
	}
	for _, v := range catalogue {
		if len(f) >= 4 {
			if strings.Contains(squash(v.ID), f) || strings.Contains(squash(v.Name), f) {
				return v, true
			}
			continue
		}
		if hasToken(v.ID, f) || hasToken(v.Name, f) {
			return v, true
		}
	}
	return tts.Voice{}, false
}

// findSubstring returns the first catalogue voice whose ID or name contains
// voice, ignoring case.
func findSubstring(catalogue []tts.Voice, voice string) (tts.Voice, bool) {
	in := strings.ToLower(voice)
	for _, v := range catalogue {
		if strings.Contains(strings.ToLower(v.Name), in) || strings.Contains(strings.ToLower(v.ID), in) {
			return v, true
		}
	}
	return tts.Voice{}, false
}

func hasToken(s, tok string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		if strings.ToLower(f) == tok {
			return true
		}
	}
	return false
}

// mostSimilar returns the catalogue voice whose name or ID scores highest
// against voice, provided it reaches [SimilarityThreshold].
func mostSimilar(catalogue []tts.Voice, voice string) (tts.Voice, bool) {
	in := squash(voice)
	var (
		best  tts.Voice
		score float64
	)
	for _, v := range catalogue {
		for _, cand := range []string{v.Name, v.ID} {
			if s := matchr.JaroWinkler(in, squash(cand), false); s > score {
				best, score = v, s
			}
		}
	}
	return best, score >= SimilarityThreshold
}

// squash lower-cases s and drops everything that is not a letter or digit.
func squash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func normTag(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
}

// lookupTag tries the full tag, then its primary subtag.
func lookupTag(m map[string][]string, tag string) []string {
	if v, ok := m[tag]; ok {
		return v
	}
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return m[tag[:i]]
	}
	return nil
}

func fromVoiceTable(vt tts.VoiceTable) map[string][]string {
	m := make(map[string][]string, len(vt))
	for lang, v := range vt {
		m[lang] = []string{v}
	}
	return m
}

func familyOf(hints []string, langs ...string) map[string][]string {
	m := make(map[string][]string, len(langs))
	for _, l := range langs {
		m[l] = hints
	}
	return m
}
