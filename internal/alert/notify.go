package alert

import (
	"fmt"
	"io"
	"strings"

	"github.com/matthewjhunter/newsalert"
)

type Notifier struct {
	w      io.Writer
	target string
}

// NewNotifier creates a notifier that writes alert boxes to w, addressed
// to target.
func NewNotifier(w io.Writer, target string) *Notifier {
	if target == "" {
		target = "on-call"
	}
	return &Notifier{w: w, target: target}
}

// NotifyCritical writes one alert per article.
func (n *Notifier) NotifyCritical(articles []newsalert.Article) error {
	for _, article := range articles {
		if err := n.send(formatAlert(article)); err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
	}
	return nil
}

func formatAlert(a newsalert.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Critical Article #%d\n\nTitle: %s\n\nSource: %s\n\nURL: %s", a.ID, a.Title, a.Source, a.URL)
	if a.DomainTags != nil {
		fmt.Fprintf(&b, "\n\nTags: %s", *a.DomainTags)
	}
	if a.Summary != nil && strings.TrimSpace(*a.Summary) != "" {
		fmt.Fprintf(&b, "\n\nSummary: %s", truncate(*a.Summary, 200))
	}
	return b.String()
}

func (n *Notifier) send(message string) error {
	_, err := fmt.Fprintf(n.w,
		"╔════════════════════════════════════════════════════════════════════════\n"+
			"║ 🔔 NEWSALERT → %s\n"+
			"╠════════════════════════════════════════════════════════════════════════\n"+
			"%s\n"+
			"╚════════════════════════════════════════════════════════════════════════\n",
		n.target, message)
	return err
}

// truncate truncates a string to maxLen runes
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
