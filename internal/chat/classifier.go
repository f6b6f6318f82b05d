package chat

import (
	"strings"
	"unicode"

	"github.com/nhle/responder-checkin/internal/model"
)

// Category is the local classifier's verdict on a user message.
type Category int

const (
	CategoryDefault Category = iota
	CategoryOK
	CategoryStruggling
	CategoryCrisis
)

func (c Category) String() string {
	switch c {
	case CategoryOK:
		return "ok"
	case CategoryStruggling:
		return "struggling"
	case CategoryCrisis:
		return "crisis"
	default:
		return "default"
	}
}

// Keyword sets, matched against whole words of the lowercased message. A
// phrase of several words must appear as consecutive words, and a trailing
// "*" makes its last word a stem that matches any word it prefixes. Sets
// are checked from most to least severe, so "not okay" lands in struggling
// before the ok set sees "okay".
var (
	crisisPhrases = []string{
		"suicid*",
		"kill myself",
		"want to die",
		"wanna die",
		"end my life",
		"end it all",
		"better off dead",
		"no reason to live",
		"hopeless*",
		"self harm*",
		"hurt myself",
		"can't go on",
		"cant go on",
		"don't want to be here",
	}

	strugglingPhrases = []string{
		"not ok",
		"not okay",
		"not fine",
		"not good",
		"not great",
		"stress*",
		"anxi*",
		"panic*",
		"overwhelm*",
		"struggl*",
		"hard time",
		"difficult*",
		"rough",
		"exhausted",
		"tired",
		"can't sleep",
		"cant sleep",
		"nightmare*",
		"flashback*",
		"shaken",
		"sad",
		"upset",
		"angry",
		"feeling down",
		"depress*",
	}

	okPhrases = []string{
		"okay",
		"ok",
		"fine",
		"alright",
		"all right",
		"good",
		"great",
		"better",
		"doing well",
	}
)

// Scripted replies for the local fallback.
const (
	ReplyStruggling = "That sounds really heavy, and it's normal to feel that way after a call like this. " +
		"What part of it is staying with you the most?"
	ReplyOK = "I'm glad to hear that. Even when a call feels manageable, checking in matters. " +
		"Is there anything about it you'd like to talk through?"
	ReplyDefault = "Thank you for sharing. I'm here to listen. " +
		"Can you tell me a bit more about how you're feeling right now?"
	EscalationMessage = "It sounds like you're carrying something really serious right now. " +
		"I'm connecting you with people who can help."
)

// Classify assigns text to a category by case-insensitive word match.
func Classify(text string) Category {
	words := tokenize(text)
	switch {
	case containsAny(words, crisisPhrases):
		return CategoryCrisis
	case containsAny(words, strugglingPhrases):
		return CategoryStruggling
	case containsAny(words, okPhrases):
		return CategoryOK
	default:
		return CategoryDefault
	}
}

// ScriptedReply returns the fallback reply for a category. Crisis has no
// reply; it escalates.
func ScriptedReply(c Category) string {
	switch c {
	case CategoryStruggling:
		return ReplyStruggling
	case CategoryOK:
		return ReplyOK
	case CategoryCrisis:
		return ""
	default:
		return ReplyDefault
	}
}

// Greeting is the welcome message for a severity.
func Greeting(severity float64) string {
	switch model.TierFor(severity) {
	case model.TierCritical:
		return "Hi there. That call looked like a hard one. How are you feeling after it?"
	case model.TierWarning:
		return "Hi there. That sounded like a challenging call. How are you feeling after it?"
	default:
		return "Hi there. How are you feeling after that call?"
	}
}

// tokenize lowercases text and splits it into words. Apostrophes stay
// inside words so contractions like "can't" survive.
func tokenize(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsAny(words []string, phrases []string) bool {
	for _, p := range phrases {
		if matchPhrase(words, p) {
			return true
		}
	}
	return false
}

func matchPhrase(words []string, phrase string) bool {
	stem := strings.HasSuffix(phrase, "*")
	want := strings.Fields(strings.TrimSuffix(phrase, "*"))
	last := len(want) - 1
	for i := 0; i+len(want) <= len(words); i++ {
		ok := true
		for j, w := range want {
			got := words[i+j]
			if j == last && stem {
				ok = strings.HasPrefix(got, w)
			} else {
				ok = got == w
			}
			if !ok {
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
