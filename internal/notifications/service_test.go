package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"meetscribe/internal/config"
	"meetscribe/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobCompleted(context.Background(), "standup.wav", "en-US", 2); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServicePublishesEvents(t *testing.T) {
	type captured struct {
		title    string
		tags     string
		priority string
		body     string
	}
	var requests []captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyJobCompleted(ctx, "standup.wav", "en-US", 3); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}
	if err := svc.NotifyJobFailed(ctx, "retro.mp3", "transcription timed out"); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if err := svc.NotifyBatchCompleted(ctx, 4, 1, 90e9); err != nil {
		t.Fatalf("NotifyBatchCompleted: %v", err)
	}

	if len(requests) != 3 {
		t.Fatalf("requests = %d", len(requests))
	}
	if requests[0].title != "Meetscribe - Transcript Ready" {
		t.Errorf("title = %q", requests[0].title)
	}
	if requests[0].body != "Transcript ready: standup.wav (en-US), 3 speakers" {
		t.Errorf("body = %q", requests[0].body)
	}
	if requests[0].priority != "high" {
		t.Errorf("priority = %q", requests[0].priority)
	}
	if requests[1].tags != "meetscribe,job,failed" {
		t.Errorf("tags = %q", requests[1].tags)
	}
	if requests[2].body != "Batch complete: 4 succeeded, 1 failed in 1m30s" {
		t.Errorf("body = %q", requests[2].body)
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for rejected notification")
	}
}
