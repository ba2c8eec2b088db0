package aiconnectors

import (
	"strings"

	"github.com/totalrecall/pkg/models"
)

const minMeaningfulLength = 5

var lowValueResponses = map[string]struct{}{
	"yes": {}, "no": {}, "maybe": {}, "ok": {}, "okay": {},
	"i don't know": {}, "idk": {}, "sure": {}, "thanks": {}, "thank you": {},
}

// IsMeaningful reports whether a message carries enough content to be worth
// resending as context
func IsMeaningful(content string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(content))
	if len(trimmed) < minMeaningfulLength {
		return false
	}
	_, low := lowValueResponses[trimmed]
	return !low
}

// Window shapes the history sent to a provider. With dropLowValue set,
// messages that fail IsMeaningful are removed; with size > 0 only the last
// size messages are kept. The latest message is always sent, and leading
// assistant turns are dropped while a user turn remains. The input slice is
// not modified.
func Window(messages []models.Message, size int, dropLowValue bool) []models.Message {
	if len(messages) == 0 {
		return nil
	}

	last := len(messages) - 1
	out := make([]models.Message, 0, len(messages))
	for i, m := range messages {
		if dropLowValue && i != last && !IsMeaningful(m.Content) {
			continue
		}
		out = append(out, m)
	}

	if size > 0 && len(out) > size {
		out = out[len(out)-size:]
	}

	for len(out) > 1 && out[0].Role != models.RoleUser {
		out = out[1:]
	}
	return out
}
