package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes notifications to the log. Used in development.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.log.WithFields(logrus.Fields{
		"user_id": msg.UserID,
		"title":   msg.Title,
		"body":    msg.Body,
	}).Info("notification")
	return nil
}
