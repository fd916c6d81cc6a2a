package templates

var accountUnlocked = mustPair("account_unlocked", `
<p>Hi {{.Name}},</p>
<p>Your account was locked after too many sign-in attempts. We have verified your identity and unlocked it, so you can sign in again now.</p>
<p>If you no longer remember your password, use <strong>Forgot password?</strong> on the sign-in page.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

Your account was locked after too many sign-in attempts. We have verified your identity and unlocked it, so you can sign in again now.

If you no longer remember your password, use "Forgot password?" on the sign-in page.

Best regards,
Support Team`)

var accountNotLocked = mustPair("account_not_locked", `
<p>Hi {{.Name}},</p>
<p>We checked your account and it is active and not locked. If you are having trouble signing in, use <strong>Forgot password?</strong> on the sign-in page to set a new password.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

We checked your account and it is active and not locked. If you are having trouble signing in, use "Forgot password?" on the sign-in page to set a new password.

Best regards,
Support Team`)

var accountNeedsReview = mustPair("account_needs_review", `
<p>Hi {{.Name}},</p>
<p>We could not automatically verify the account linked to this email address. A member of our team will review your request and get back to you.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

We could not automatically verify the account linked to this email address. A member of our team will review your request and get back to you.

Best regards,
Support Team`)

var accessRequested = mustPair("access_requested", `
<p>Hi {{.Name}},</p>
<p>We have logged your access request (reference <strong>{{.Reference}}</strong>). Access changes need approval from the resource owner; you will receive an email as soon as it has been granted.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

We have logged your access request (reference {{.Reference}}). Access changes need approval from the resource owner; you will receive an email as soon as it has been granted.

Best regards,
Support Team`)

var courseCompleted = mustPair("course_completed", `
<p>Hi {{.Name}},</p>
<p>We found that the following courses were finished but not recorded as complete, and have updated them:</p>
<ul>{{range .Courses}}<li>{{.}}</li>{{end}}</ul>
<p>Your certificates are now available from your profile.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

We found that the following courses were finished but not recorded as complete, and have updated them:
{{range .Courses}}
- {{.}}{{end}}

Your certificates are now available from your profile.

Best regards,
Support Team`)

var courseInProgress = mustPair("course_in_progress", `
<p>Hi {{.Name}},</p>
<p>Here is your current progress:</p>
<ul>{{range .Courses}}<li>{{.}}</li>{{end}}</ul>
<p>A course is marked complete once every module and the final assessment are finished.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

Here is your current progress:
{{range .Courses}}
- {{.}}{{end}}

A course is marked complete once every module and the final assessment are finished.

Best regards,
Support Team`)

var emailNotifications = mustPair("email_notifications", `
<p>Hi {{.Name}},</p>
<p>If our emails are not reaching you, please try the following:</p>
<ol>
<li>Check your spam or junk folder and mark our messages as "not spam".</li>
<li>Add our sending address to your contacts or safe-senders list.</li>
<li>Make sure notifications are enabled under <strong>Profile &gt; Notification settings</strong>.</li>
</ol>
{{if .Reenabled}}<p>We noticed email notifications were switched off on your account and have turned them back on.</p>{{end}}
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

If our emails are not reaching you, please try the following:

1. Check your spam or junk folder and mark our messages as "not spam".
2. Add our sending address to your contacts or safe-senders list.
3. Make sure notifications are enabled under Profile > Notification settings.
{{if .Reenabled}}
We noticed email notifications were switched off on your account and have turned them back on.
{{end}}
Best regards,
Support Team`)

var printerTroubleshooting = mustPair("printer_troubleshooting", `
<p>Hi {{.Name}},</p>
<p>Most printer problems are solved by these steps:</p>
<ol>
<li>Turn the printer off, wait 30 seconds and turn it back on.</li>
<li>Clear any paper jams and check toner and paper levels.</li>
<li>Cancel stuck jobs in the print queue, then print again.</li>
<li>Remove and re-add the printer on your computer.</li>
</ol>
<p>If the printer still does not work, reply to this email with the printer name and any error message shown.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

Most printer problems are solved by these steps:

1. Turn the printer off, wait 30 seconds and turn it back on.
2. Clear any paper jams and check toner and paper levels.
3. Cancel stuck jobs in the print queue, then print again.
4. Remove and re-add the printer on your computer.

If the printer still does not work, reply to this email with the printer name and any error message shown.

Best regards,
Support Team`)

// AccountUnlocked confirms an automated unlock.
func AccountUnlocked(name string) Message {
	return accountUnlocked.render(struct{ Name string }{greetingName(name)})
}

// AccountNotLocked tells the customer no unlock was needed.
func AccountNotLocked(name string) Message {
	return accountNotLocked.render(struct{ Name string }{greetingName(name)})
}

// AccountNeedsReview is sent when the directory could not verify the requester.
func AccountNeedsReview(name string) Message {
	return accountNeedsReview.render(struct{ Name string }{greetingName(name)})
}

// AccessRequested acknowledges a logged access request.
func AccessRequested(name, reference string) Message {
	return accessRequested.render(struct{ Name, Reference string }{greetingName(name), reference})
}

// CourseCompleted lists courses whose completion was repaired.
func CourseCompleted(name string, courses []string) Message {
	return courseCompleted.render(struct {
		Name    string
		Courses []string
	}{greetingName(name), courses})
}

// CourseInProgress summarises unfinished courses.
func CourseInProgress(name string, courses []string) Message {
	return courseInProgress.render(struct {
		Name    string
		Courses []string
	}{greetingName(name), courses})
}

// EmailNotifications is the deliverability checklist.
func EmailNotifications(name string, reenabled bool) Message {
	return emailNotifications.render(struct {
		Name      string
		Reenabled bool
	}{greetingName(name), reenabled})
}

// PrinterTroubleshooting is the printer checklist.
func PrinterTroubleshooting(name string) Message {
	return printerTroubleshooting.render(struct{ Name string }{greetingName(name)})
}
