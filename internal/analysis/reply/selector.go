package reply

import (
	"fmt"
	"strings"
)

// Canned replies returned by Select.
const (
	Greeting = "Hello there! How can I assist you?"
	Status   = "I'm just a bot, but I'm functioning well! Thanks for asking."
	Farewell = "Goodbye! Have a great day!"

	echoTemplate = "I received: \"%s\". This is a basic echo response."
)

// Intent names the rule that produced a reply.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentStatus   Intent = "status"
	IntentFarewell Intent = "farewell"
	IntentEcho     Intent = "echo"
)

type rule struct {
	intent   Intent
	keywords []string
	reply    string
}

// Evaluated in order; the first rule with a matching keyword wins.
var rules = []rule{
	{intent: IntentGreeting, keywords: []string{"hello", "hi"}, reply: Greeting},
	{intent: IntentStatus, keywords: []string{"how are you"}, reply: Status},
	{intent: IntentFarewell, keywords: []string{"bye", "goodbye"}, reply: Farewell},
}

// Decision is the outcome of matching one input.
type Decision struct {
	Intent Intent
	Reply  string
}

// Classify matches input against the rule table. Matching is a
// case-insensitive substring test, so "this" matches the greeting rule.
func Classify(input string) Decision {
	normalized := strings.ToLower(input)

	for _, r := range rules {
		for _, word := range r.keywords {
			if strings.Contains(normalized, word) {
				return Decision{Intent: r.intent, Reply: r.reply}
			}
		}
	}

	return Decision{Intent: IntentEcho, Reply: echo(input)}
}

// Select returns the reply text for input.
func Select(input string) string {
	return Classify(input).Reply
}

// echo wraps the original, non-normalized input.
func echo(input string) string {
	return fmt.Sprintf(echoTemplate, input)
}
