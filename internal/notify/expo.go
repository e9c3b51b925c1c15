package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpoDispatcher delivers pushes through the Expo push HTTP API.
type ExpoDispatcher struct {
	client      *http.Client
	endpoint    string
	accessToken string
	tokens      TokenLookup
	owners      OwnerResolver
	log         *logrus.Logger
}

func NewExpoDispatcher(endpoint, accessToken string, timeout time.Duration, tokens TokenLookup, owners OwnerResolver, logger *logrus.Logger) *ExpoDispatcher {
	return &ExpoDispatcher{
		client:      &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		accessToken: accessToken,
		tokens:      tokens,
		owners:      owners,
		log:         logger,
	}
}

type expoMessage struct {
	To         string            `json:"to"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Sound      string            `json:"sound,omitempty"`
	Badge      int               `json:"badge,omitempty"`
	CategoryID string            `json:"categoryId,omitempty"`
}

type expoResponse struct {
	Data struct {
		Status  string `json:"status"`
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"data"`
}

func (d *ExpoDispatcher) SendPush(ctx context.Context, targetUserID string, p Push, category string) error {
	token, err := d.tokens.PushToken(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("lookup push token: %w", err)
	}
	if token == "" {
		return ErrNoPushToken
	}

	body, err := json.Marshal(expoMessage{
		To:         token,
		Title:      p.Title,
		Body:       p.Body,
		Data:       p.Data,
		Sound:      p.Sound,
		Badge:      p.Badge,
		CategoryID: category,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if d.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.accessToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if out.Data.Status != "ok" {
		return fmt.Errorf("%w: %s", ErrRejected, out.Data.Message)
	}

	d.log.WithFields(logrus.Fields{
		"user_id":  targetUserID,
		"ticket":   out.Data.ID,
		"category": category,
	}).Debug("push accepted")
	return nil
}

func (d *ExpoDispatcher) ResolveUserIDFromOwnerID(ctx context.Context, ownerID string) (string, error) {
	return d.owners.ResolveUserIDFromOwnerID(ctx, ownerID)
}

// LogDispatcher is used when push delivery is disabled: it only logs.
type LogDispatcher struct {
	owners OwnerResolver
	log    *logrus.Logger
}

func NewLogDispatcher(owners OwnerResolver, logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{owners: owners, log: logger}
}

func (d *LogDispatcher) SendPush(_ context.Context, targetUserID string, p Push, category string) error {
	d.log.WithFields(logrus.Fields{
		"user_id":  targetUserID,
		"category": category,
		"title":    p.Title,
	}).Info("push disabled, skipping delivery")
	return nil
}

func (d *LogDispatcher) ResolveUserIDFromOwnerID(ctx context.Context, ownerID string) (string, error) {
	return d.owners.ResolveUserIDFromOwnerID(ctx, ownerID)
}
