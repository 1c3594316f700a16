package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundprediction/go-biohub/pkg/httpclient"
)

// Level colours a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelFailure Level = "failure"
)

// Link points at a log page of the hub web root.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Message is one dispatcher notification.
type Message struct {
	Text  string `json:"text"`
	Level Level  `json:"level"`
	Links []Link `json:"links,omitempty"`
}

// Notifier broadcasts dispatcher events.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogLinks returns the log page links of src, e.g. <root>/log/upload/<src>.
func LogLinks(wwwRoot, src string, kinds ...string) []Link {
	if wwwRoot == "" {
		return nil
	}
	root := strings.TrimRight(wwwRoot, "/")
	links := make([]Link, 0, len(kinds))
	for _, k := range kinds {
		links = append(links, Link{Label: k + " log", URL: fmt.Sprintf("%s/log/%s/%s", root, k, src)})
	}
	return links
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	l := n.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	if msg.Level == LevelFailure {
		level = slog.LevelError
	}
	args := make([]any, 0, len(msg.Links)*2)
	for _, link := range msg.Links {
		args = append(args, link.Label, link.URL)
	}
	l.Log(ctx, level, msg.Text, args...)
	return nil
}

// WebhookNotifier posts notifications as JSON.
type WebhookNotifier struct {
	URL    string
	Client *httpclient.Client
}

// Notify implements Notifier.
func (n WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if err := n.Client.PostJSON(ctx, n.URL, msg, nil); err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	return nil
}

// MultiNotifier fans a message out to several notifiers.
type MultiNotifier []Notifier

// Notify implements Notifier. Every notifier is tried.
func (m MultiNotifier) Notify(ctx context.Context, msg Message) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
