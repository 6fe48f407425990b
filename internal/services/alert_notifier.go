package services

import (
	"fmt"
	"regexp"

	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"

	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/models"
)

// AlertNotifier delivers new alerts to operators outside the console.
type AlertNotifier interface {
	Notify(alert models.Alert)
}

// ShoutrrrNotifier fans an alert out to every configured shoutrrr URL
// (slack://, discord://, smtp://, generic:// webhooks ...). Delivery is
// best-effort; failures are logged per target.
type ShoutrrrNotifier struct {
	urls        []string
	minSeverity models.AlertSeverity
	send        func(url, message string) error
}

// NewShoutrrrNotifier returns a notifier for alerts at or above minSeverity.
// An unknown minSeverity is treated as error.
func NewShoutrrrNotifier(urls []string, minSeverity models.AlertSeverity) *ShoutrrrNotifier {
	if !minSeverity.Valid() {
		minSeverity = models.AlertSeverityError
	}
	return &ShoutrrrNotifier{
		urls:        append([]string(nil), urls...),
		minSeverity: minSeverity,
		send:        shoutrrr.Send,
	}
}

// Notify sends the alert synchronously to every target.
func (n *ShoutrrrNotifier) Notify(alert models.Alert) {
	if len(n.urls) == 0 || alert.Severity.Rank() < n.minSeverity.Rank() {
		return
	}
	msg := fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Type, alert.Message)
	for _, u := range n.urls {
		if err := n.send(u, msg); err != nil {
			logger.WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"target":   redactURL(u),
			}).WithError(err).Warn("failed to deliver alert notification")
		}
	}
}

var credentialsInURL = regexp.MustCompile(`//[^@/]*@`)

// redactURL hides tokens embedded in the userinfo part of a service URL.
func redactURL(u string) string {
	return credentialsInURL.ReplaceAllString(u, "//<redacted>@")
}
