// README: Firebase Cloud Messaging backend. Fans a message out to every device token of the user.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
)

// MulticastClient is the subset of *messaging.Client used here.
type MulticastClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMNotifier struct {
	client   MulticastClient
	tokens   TokenStore
	imageURL string
	log      *logrus.Logger
}

func NewFCMNotifier(client MulticastClient, tokens TokenStore, imageURL string, log *logrus.Logger) *FCMNotifier {
	return &FCMNotifier{client: client, tokens: tokens, imageURL: imageURL, log: log}
}

func (n *FCMNotifier) Send(ctx context.Context, msg Message) error {
	tokens, err := n.tokens.Tokens(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("load tokens for %s: %w", msg.UserID, err)
	}
	if len(tokens) == 0 {
		n.log.WithField("user_id", msg.UserID).Debug("no device tokens, skipping push")
		return nil
	}

	resp, err := n.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: n.imageURL,
		},
		Data: map[string]string{
			"user_id": string(msg.UserID),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		return fmt.Errorf("fcm multicast: %w", err)
	}

	for i, r := range resp.Responses {
		if r.Success || i >= len(tokens) {
			continue
		}
		if messaging.IsUnregistered(r.Error) {
			if err := n.tokens.Delete(ctx, msg.UserID, tokens[i]); err != nil {
				n.log.WithError(err).Warn("failed to prune unregistered token")
			}
		}
	}
	if resp.SuccessCount == 0 {
		return fmt.Errorf("fcm: all %d deliveries failed", resp.FailureCount)
	}
	return nil
}
