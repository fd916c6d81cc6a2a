// Package templates renders the canned customer replies sent by the
// template and workflow branches of the pipeline.
package templates

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Message is a customer reply in HTML with a plain-text fallback.
type Message struct {
	HTMLContent       string `json:"htmlContent"`
	PlainTextFallback string `json:"plainTextFallback"`
}

type pair struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func mustPair(name, htmlSrc, textSrc string) pair {
	return pair{
		html: htmltemplate.Must(htmltemplate.New(name).Parse(htmlSrc)),
		text: texttemplate.Must(texttemplate.New(name).Parse(textSrc)),
	}
}

func (p pair) render(data any) Message {
	var h, t bytes.Buffer
	// Templates are static and data is plain values, execution cannot fail.
	_ = p.html.Execute(&h, data)
	_ = p.text.Execute(&t, data)
	return Message{
		HTMLContent:       strings.TrimSpace(h.String()),
		PlainTextFallback: strings.TrimSpace(t.String()),
	}
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return strings.TrimSpace(name)
}

var passwordReset = mustPair("password_reset", `
<p>Hi {{.Name}},</p>
<p>Thanks for reaching out. You can reset your password yourself in a few steps:</p>
<ol>
<li>Go to the sign-in page and choose <strong>Forgot password?</strong></li>
<li>Enter the email address on your account.</li>
<li>Open the reset email (check your spam folder) and follow the link within 30 minutes.</li>
<li>Choose a new password and sign in.</li>
</ol>
<p>If the link does not arrive or the reset does not work, just reply to this email and a member of our team will help you directly.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

Thanks for reaching out. You can reset your password yourself in a few steps:

1. Go to the sign-in page and choose "Forgot password?"
2. Enter the email address on your account.
3. Open the reset email (check your spam folder) and follow the link within 30 minutes.
4. Choose a new password and sign in.

If the link does not arrive or the reset does not work, just reply to this email and a member of our team will help you directly.

Best regards,
Support Team`)

var agentAssignment = mustPair("agent_assignment", `
<p>Hi {{.Name}},</p>
<p>We're sorry the previous steps didn't solve the problem. Your ticket <strong>#{{.TicketNumber}}</strong> has been assigned to <strong>{{.Agent}}</strong>, who will contact you shortly.</p>
<p>You don't need to do anything else. Replies to this email go straight to {{.Agent}}.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

We're sorry the previous steps didn't solve the problem. Your ticket #{{.TicketNumber}} has been assigned to {{.Agent}}, who will contact you shortly.

You don't need to do anything else. Replies to this email go straight to {{.Agent}}.

Best regards,
Support Team`)

var escalationQueued = mustPair("escalation_queued", `
<p>Hi {{.Name}},</p>
<p>We're sorry the previous steps didn't solve the problem. Your ticket <strong>#{{.TicketNumber}}</strong> has been escalated to our support team and the next available agent will contact you.</p>
<p>Best regards,<br>Support Team</p>`, `
Hi {{.Name}},

We're sorry the previous steps didn't solve the problem. Your ticket #{{.TicketNumber}} has been escalated to our support team and the next available agent will contact you.

Best regards,
Support Team`)

// PasswordReset is the self-service password reset reply.
func PasswordReset(customerName string) Message {
	return passwordReset.render(struct{ Name string }{greetingName(customerName)})
}

// AgentAssignment tells the customer which agent now owns the ticket.
func AgentAssignment(customerName, agentName, ticketNumber string) Message {
	return agentAssignment.render(struct{ Name, Agent, TicketNumber string }{
		greetingName(customerName), agentName, ticketNumber,
	})
}

// EscalationQueued is sent when a hand-off is needed but no agent could be assigned.
func EscalationQueued(customerName, ticketNumber string) Message {
	return escalationQueued.render(struct{ Name, TicketNumber string }{
		greetingName(customerName), ticketNumber,
	})
}
