// Package intent classifies free text against known support intents using
// keyword and phrase heuristics. Detectors are pure and case-insensitive.
package intent

import "strings"

// Detector reports whether a ticket subject and body express an intent.
type Detector func(subject, body string) bool

var (
	passwordResetPhrases = []string{
		"reset my password", "reset password", "password reset", "reset the password",
		"forgot my password", "forgot password", "forgotten password", "forgotten my password",
		"can't log in", "cant log in", "cannot log in", "can't login", "cannot login",
		"unable to log in", "unable to login", "change my password", "password expired",
		"password not working", "password doesn't work", "new password",
	}
	accountUnlockPhrases = []string{
		"account locked", "account is locked", "account has been locked", "account got locked",
		"locked out", "unlock my account", "unlock account", "unlock the account",
		"account disabled", "account is disabled", "account has been disabled",
	}
	accessRequestPhrases = []string{
		"request access", "requesting access", "need access", "grant access", "give me access",
		"access request", "don't have access", "do not have access", "no access to",
		"add me to", "permission to access", "need permission",
	}
	courseCompletionPhrases = []string{
		"course completion", "completed the course", "finished the course", "completion status",
		"not marked complete", "not marked as complete", "mark as complete", "mark it complete",
		"certificate of completion", "completion certificate", "course progress",
	}
	emailNotificationPhrases = []string{
		"not receiving email", "not receiving emails", "not getting email", "not getting emails",
		"email notification", "no email notifications", "notifications are not",
		"didn't receive the email", "did not receive the email", "haven't received any email",
		"stopped receiving", "emails going to spam",
	}
	printerIssuePhrases = []string{
		"printer", "print job", "paper jam", "toner", "won't print", "cannot print", "can't print",
	}
)

// PasswordReset detects requests to reset a forgotten or expired password.
func PasswordReset(subject, body string) bool {
	return containsAny(subject, body, passwordResetPhrases)
}

// AccountUnlock detects locked or disabled accounts.
func AccountUnlock(subject, body string) bool {
	return containsAny(subject, body, accountUnlockPhrases)
}

// AccessRequest detects requests for access to a system or resource.
func AccessRequest(subject, body string) bool {
	return containsAny(subject, body, accessRequestPhrases)
}

// CourseCompletion detects course completion and certificate problems.
func CourseCompletion(subject, body string) bool {
	return containsAny(subject, body, courseCompletionPhrases)
}

// EmailNotification detects missing notification emails.
func EmailNotification(subject, body string) bool {
	return containsAny(subject, body, emailNotificationPhrases)
}

// PrinterIssue detects printer and print-job problems.
func PrinterIssue(subject, body string) bool {
	return containsAny(subject, body, printerIssuePhrases)
}

func containsAny(subject, body string, phrases []string) bool {
	text := Normalize(subject + " " + body)
	if text == "" {
		return false
	}
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// Normalize lowercases text, folds typographic apostrophes and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(text)
	return strings.Join(strings.Fields(text), " ")
}
