package agent

import "strings"

// answer is how an utterance replies to a pending confirmation.
type answer int

const (
	answerNone answer = iota
	answerYes
	answerNo
)

var (
	yesPhrases = []string{"yes", "y", "yep", "yeah", "yup", "sure", "ok", "okay", "do it", "confirm", "go ahead", "please do", "yes please", "correct"}
	noPhrases  = []string{"no", "n", "nope", "nah", "cancel", "don't", "dont", "never mind", "nevermind", "no thanks", "stop"}
)

// parseAnswer recognises short affirmative and negative replies. "yes" with a
// few trailing words still counts as yes; "no, the white one" is a new request.
func parseAnswer(utterance string) answer {
	s := strings.ToLower(strings.TrimSpace(utterance))
	s = strings.TrimRight(s, ".!?")
	s = strings.TrimSpace(s)
	if s == "" {
		return answerNone
	}
	for _, p := range yesPhrases {
		if s == p {
			return answerYes
		}
	}
	for _, p := range noPhrases {
		if s == p {
			return answerNo
		}
	}

	first, rest, _ := strings.Cut(s, " ")
	first = strings.TrimRight(first, ",")
	if len(strings.Fields(rest)) > 3 {
		return answerNone
	}
	switch first {
	case "yes", "yep", "yeah", "sure":
		return answerYes
	}
	return answerNone
}
