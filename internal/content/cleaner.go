// Package content strips email chrome (quoted replies, forwarded headers,
// signatures and HTML markup) from inbound message bodies.
package content

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlMarker = regexp.MustCompile(`(?i)<(br|div|p|blockquote|span|html|body|table|tr|td|a|b|i|u|strong|em|font|img|ul|ol|li|meta|style|head)(\s[^<>]*)?/?>`)

	htmlQuoteTail  = regexp.MustCompile(`(?is)<div[^>]*class\s*=\s*["'][^"']*(gmail_quote|zmail_extra|moz-cite-prefix|yahoo_quoted|OutlookMessageHeader)[^"']*["'].*$`)
	htmlBlockquote = regexp.MustCompile(`(?is)<blockquote[^>]*>.*?</blockquote>`)
	htmlDropBlock  = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	htmlLineBreak  = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6])>`)
	htmlTag        = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)

	replyHeader     = regexp.MustCompile(`(?i)^\s*on\s.+\swrote:\s*$`)
	forwardMarker   = regexp.MustCompile(`(?i)^\s*(-{2,}\s*(original message|forwarded message)\s*-{2,}|begin forwarded message:)\s*$`)
	outlookFrom     = regexp.MustCompile(`(?i)^\s*(from|de|von):\s*\S`)
	outlookFollower = regexp.MustCompile(`(?i)^\s*(sent|date|to|subject|envoyé|gesendet):`)
	mobileSignature = regexp.MustCompile(`(?i)^\s*sent from my\s`)
	signOff         = regexp.MustCompile(`(?i)^\s*(thanks|thank you|regards|best regards|kind regards|warm regards|best|cheers|sincerely)\s*[,!.]?\s*$`)

	horizontalSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// signOffTailLines bounds how many non-empty lines may follow a sign-off
// for it to count as the start of a signature block.
const signOffTailLines = 4

// Clean removes quoted replies, forwarded headers and signature blocks from
// a message body. It never fails; input without any recognised markers is
// returned as-is apart from whitespace normalisation. Clean is idempotent.
func Clean(raw string) string {
	body, markup := settle(raw)
	if markup {
		// Entities are decoded once, after all markup is gone, so escaped
		// text such as "&lt;p&gt;" is never mistaken for a tag.
		body, _ = settle(decodeEntities(body))
	}
	return body
}

// settle repeats cleanPass until the body stops changing and reports
// whether any pass stripped HTML markup.
func settle(body string) (string, bool) {
	markup := false
	// Every pass only removes or shortens text, so the loop reaches a fixed
	// point; the bound is a guard against pathological input.
	for i := 0; i < 32; i++ {
		next, stripped := cleanPass(body)
		markup = markup || stripped
		if next == body {
			break
		}
		body = next
	}
	return body, markup
}

var tagEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// decodeEntities unescapes HTML entities, keeping any decoded text that
// looks like a tag in escaped form.
func decodeEntities(body string) string {
	return htmlTag.ReplaceAllStringFunc(html.UnescapeString(body), tagEscaper.Replace)
}

func cleanPass(body string) (string, bool) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	markup := htmlMarker.MatchString(body)
	if markup {
		body = stripHTML(body)
	}

	lines := strings.Split(body, "\n")
	lines = cutQuotedTail(lines)
	lines = cutSignature(lines)

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(horizontalSpace.ReplaceAllString(line, " "), " "))
	}

	out := strings.Join(kept, "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), markup
}

func stripHTML(body string) string {
	body = htmlQuoteTail.ReplaceAllString(body, "")
	body = htmlBlockquote.ReplaceAllString(body, "")
	body = htmlDropBlock.ReplaceAllString(body, "")
	body = htmlLineBreak.ReplaceAllString(body, "\n")
	return htmlTag.ReplaceAllString(body, "")
}

// cutQuotedTail truncates at the first reply or forward header.
func cutQuotedTail(lines []string) []string {
	for i, line := range lines {
		if replyHeader.MatchString(line) || forwardMarker.MatchString(line) {
			return lines[:i]
		}
		if outlookFrom.MatchString(line) && i+1 < len(lines) && outlookFollower.MatchString(nextNonEmpty(lines[i+1:])) {
			return lines[:i]
		}
	}
	return lines
}

// cutSignature truncates at a "-- " delimiter, a mobile footer, or a
// sign-off that is followed by only a few short lines.
func cutSignature(lines []string) []string {
	for i, line := range lines {
		if strings.TrimSpace(line) == "--" || mobileSignature.MatchString(line) {
			return lines[:i]
		}
		if i > 0 && signOff.MatchString(line) && nonEmptyCount(lines[i+1:]) <= signOffTailLines {
			return lines[:i]
		}
	}
	return lines
}

func nextNonEmpty(lines []string) string {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func nonEmptyCount(lines []string) int {
	count := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
