// Package failure classifies a terminal run failure into a single reporting label.
package failure

import (
	"strings"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

// Category is the label assigned to a failed run.
type Category string

const (
	BrowserCrash           Category = "browser_crash"
	LLMError               Category = "llm_error"
	Timeout                Category = "timeout"
	StuckLoop              Category = "stuck_loop"
	ElementNotFound        Category = "element_not_found"
	ElementNotInteractable Category = "element_not_interactable"
	NavigationError        Category = "navigation_error"
	NetworkError           Category = "network_error"
	AuthError              Category = "auth_error"
	FormError              Category = "form_error"
	AssertionFailed        Category = "assertion_failed"
	Unknown                Category = "unknown"
)

// recentWindow is how many trailing action log rows the log-based rules inspect.
const recentWindow = 5

var (
	browserTerms     = []string{"target closed", "closed", "browser"}
	llmTerms         = []string{"claude", "gemini", "spawn", "enoent", "llm"}
	timeoutTerms     = []string{"timeout", "timed out", "maximum actions"}
	stuckTerms       = []string{"stuck", "without progress", "same screen"}
	notFoundTerms    = []string{"not found", "no element", "no valid selector", "no elements match"}
	notInteractTerms = []string{"not interactable", "disabled", "covered", "intercepts pointer", "not visible"}
	navigationTerms  = []string{"navigat", "connection refused", "econnrefused", "net::err_", "ns_error_", "err_name_not_resolved"}
	networkTerms     = []string{"api", "network", "fetch"}
	authTerms        = []string{"auth", "401", "403", "forbidden", "unauthorized"}
	assertionTerms   = []string{"criteria", "assertion"}
)

// Categorize applies the ordered rule cascade to errMsg and the tail of the
// action log. The first matching rule wins; nothing here can fail.
func Categorize(errMsg string, actionLog []schemas.ActionLogEntry) Category {
	msg := strings.ToLower(errMsg)
	recent := actionLog
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	switch {
	case containsAny(msg, browserTerms):
		return BrowserCrash
	case containsAny(msg, llmTerms):
		return LLMError
	case containsAny(msg, timeoutTerms):
		return Timeout
	case containsAny(msg, stuckTerms):
		return StuckLoop
	case countErrors(recent, notFoundTerms) >= 2:
		return ElementNotFound
	case countErrors(recent, notInteractTerms) >= 2:
		return ElementNotInteractable
	case containsAny(msg, navigationTerms):
		return NavigationError
	case containsAny(msg, networkTerms):
		return NetworkError
	case containsAny(msg, authTerms):
		return AuthError
	case hasFailedTyping(recent):
		return FormError
	case containsAny(msg, assertionTerms):
		return AssertionFailed
	}
	return Unknown
}

func containsAny(s string, terms []string) bool {
	if s == "" {
		return false
	}
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// countErrors counts log rows whose error text mentions any of terms.
func countErrors(entries []schemas.ActionLogEntry, terms []string) int {
	n := 0
	for _, e := range entries {
		if containsAny(strings.ToLower(e.Error), terms) {
			n++
		}
	}
	return n
}

func hasFailedTyping(entries []schemas.ActionLogEntry) bool {
	for _, e := range entries {
		if e.Failed() && e.Action.Type == schemas.ActionTypeText {
			return true
		}
	}
	return false
}
