package exercise

import (
	"regexp"
	"strings"
)

// grammarRule flags a sentence as incorrect when its pattern matches.
type grammarRule struct {
	name    string
	pattern *regexp.Regexp
}

// grammarRules is the pattern table used by the training popup. Only
// frequent, unambiguous faults are listed; a sentence matching none of them
// is taken as correct. Go's \b is ASCII only, so patterns never put \b next
// to an accented letter.
var grammarRules = []grammarRule{
	{"malgré que", regexp.MustCompile(`\bmalgré qu(?:e\b|')`)},
	{"pallier à", regexp.MustCompile(`\bpalli\S* (?:à|aux?)(?:\s|$)`)},
	{"au jour d'aujourd'hui", regexp.MustCompile(`\bau jour d'aujourd'hui\b`)},
	{"se rappeler de", regexp.MustCompile(`\b(?:se |me |te |nous |vous |m'|t'|s')rappel\S* (?:du |des |de (?:ce|cet|cette|lui|son|sa|ses|mon|ma|mes|ton|ta|tes|notre|nos|votre|vos|leur|leurs|la)\b|de l')`)},
	{"de manière à ce que", regexp.MustCompile(`\bde (?:manière|façon) à ce qu`)},
	{"si + conditionnel", regexp.MustCompile(`\bsi (?:j'|tu |il |elle |on |nous |vous |ils |elles )(?:aur|ser|pourr|devr|voudr|fer|ir)(?:ais|ait|ions|iez|aient)\b`)},
	{"après que + subjonctif", regexp.MustCompile(`\baprès qu(?:e |')\w+ (?:soit|soient|ait|aient|aies|sois)\b`)},
	{"soi-disant", regexp.MustCompile(`\bsoit[- ]disant\b`)},
	{"voire même", regexp.MustCompile(`\bvoire même\b`)},
	{"pléonasme de direction", regexp.MustCompile(`\b(?:monter|monte|montent) en haut\b|\b(?:descendre|descend|descendent) en bas\b`)},
	{"comme même", regexp.MustCompile(`\bcomme même\b`)},
}

// Classify reports whether sentence is grammatically correct according to
// the pattern table, and the rule that rejected it otherwise.
func Classify(sentence string) (correct bool, rule string) {
	s := normalizeSentence(sentence)
	for _, r := range grammarRules {
		if r.pattern.MatchString(s) {
			return false, r.name
		}
	}
	return true, ""
}

var apostrophes = strings.NewReplacer("’", "'", "ʼ", "'", "`", "'")

func normalizeSentence(s string) string {
	s = apostrophes.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}
