package agent

import (
	"regexp"
	"strings"
	"sync"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph"
)

// tokenPatterns caches compiled word-boundary matchers by token.
var tokenPatterns sync.Map

// HasToken reports whether text contains token. Matching is
// case-sensitive: "ERRORS: INV-100 missing" carries ERROR, "error" does not.
func HasToken(text, token string) bool {
	return token != "" && strings.Contains(text, token)
}

// HasWord reports whether token appears in text as a whole word, so "NA"
// matches "NA: not an invoice" but not "UNAVAILABLE" or "NAME".
func HasWord(text, token string) bool {
	if token == "" {
		return false
	}
	return tokenPattern(token).MatchString(text)
}

func tokenPattern(token string) *regexp.Regexp {
	if re, ok := tokenPatterns.Load(token); ok {
		return re.(*regexp.Regexp)
	}
	re, _ := tokenPatterns.LoadOrStore(token, regexp.MustCompile(`\b`+regexp.QuoteMeta(token)+`\b`))
	return re.(*regexp.Regexp)
}

// Rule sends a message containing Token to Dest. WholeWord restricts the
// match to HasWord, for tokens short enough to occur inside other words.
type Rule struct {
	Token     string
	Dest      string
	WholeWord bool
}

func (r Rule) matches(text string) bool {
	if r.WholeWord {
		return HasWord(text, r.Token)
	}
	return HasToken(text, r.Token)
}

// Rules is an ordered routing table for the messages one agent produces.
//
// A message carrying tool calls goes to ToolDest when it is set. Otherwise
// Tokens are checked in order and the first match wins. Anything else,
// including an empty message, goes to Default.
type Rules struct {
	ToolDest string
	Tokens   []Rule
	Default  string
}

// Route returns the destination for msg.
func (r Rules) Route(msg conversation.Message) string {
	if r.ToolDest != "" && msg.HasToolCalls() {
		return r.ToolDest
	}
	if msg.Content != "" {
		for _, rule := range r.Tokens {
			if rule.matches(msg.Content) {
				return rule.Dest
			}
		}
	}
	return r.Default
}

// Destinations returns every destination the table can produce, in table
// order and without duplicates.
func (r Rules) Destinations() []string {
	seen := map[string]bool{}
	var dests []string
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			dests = append(dests, d)
		}
	}
	add(r.ToolDest)
	for _, rule := range r.Tokens {
		add(rule.Dest)
	}
	add(r.Default)
	return dests
}

// Labels returns a label map for AddConditionalEdges where each
// destination is its own label.
func (r Rules) Labels() map[string]string {
	labels := make(map[string]string)
	for _, d := range r.Destinations() {
		labels[d] = d
	}
	return labels
}

// Router routes on the last message of the state.
func (r Rules) Router() flowgraph.RouterFunc[conversation.State] {
	return func(_ flowgraph.Context, s conversation.State) string {
		last, _ := s.Last()
		return r.Route(last)
	}
}

// SenderRouter routes on State.Sender, the agent that requested the tool
// calls just answered.
func SenderRouter() flowgraph.RouterFunc[conversation.State] {
	return func(_ flowgraph.Context, s conversation.State) string {
		return s.Sender
	}
}
