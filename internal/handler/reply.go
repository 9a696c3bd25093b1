package handler

import (
	"strings"
	"unicode"

	"wedding-ops/internal/models"
)

// Reply is an RSVP answer parsed from a chat message
type Reply struct {
	Disposition models.Disposition
	// Companions is nil when the message did not list any.
	Companions []models.Companion
}

var (
	declinePhrases = []string{"not coming", "can't come", "cannot come", "won't come", "can't make it", "won't make it"}
	declineWords   = []string{"no", "nope", "decline", "declining", "❌"}
	acceptPhrases  = []string{"will come", "will be there"}
	acceptWords    = []string{"yes", "yep", "yeah", "accept", "accepting", "attending", "coming", "✅"}
)

// ParseReply reads "yes"/"no" style answers. A yes may list companions after
// a colon: "yes: Bo (partner), Cy". Negative phrases win over positive words,
// so "not coming" is a no. Otherwise the earliest answer word decides, so
// "yes, but no kids" is a yes. ok is false when the text is not an answer.
func ParseReply(text string) (reply Reply, ok bool) {
	answer, list, hasList := strings.Cut(text, ":")
	lower := strings.ToLower(strings.TrimSpace(answer))
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'')
	})

	no, yes := wordIndex(words, declineWords...), wordIndex(words, acceptWords...)
	switch {
	case containsAny(lower, declinePhrases...) || (no >= 0 && (yes < 0 || no < yes)):
		return Reply{Disposition: models.DispositionNo}, true
	case containsAny(lower, acceptPhrases...) || yes >= 0:
		reply = Reply{Disposition: models.DispositionYes}
		if hasList {
			reply.Companions = parseCompanions(list)
		}
		return reply, true
	}
	return Reply{}, false
}

// parseCompanions splits "Bo (partner), Cy" into companions
func parseCompanions(list string) []models.Companion {
	companions := []models.Companion{}
	for _, part := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == '\n' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var c models.Companion
		if open := strings.Index(part, "("); open >= 0 && strings.HasSuffix(part, ")") {
			c.Name = strings.TrimSpace(part[:open])
			c.RelationToMain = strings.TrimSpace(part[open+1 : len(part)-1])
		} else {
			c.Name = part
		}
		companions = append(companions, c)
	}
	return companions
}

// containsAny checks if the text contains any of the given keywords
func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// wordIndex returns the position of the first word matching a keyword, or -1
func wordIndex(words []string, keywords ...string) int {
	for i, w := range words {
		for _, k := range keywords {
			if w == k {
				return i
			}
		}
	}
	return -1
}
