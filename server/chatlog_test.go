package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestChatLog(t *testing.T, limit int) *SQLiteChatLog {
	t.Helper()
	l, err := NewSQLiteChatLog(t.Context(), filepath.Join(t.TempDir(), "chat.db"), limit)
	if err != nil {
		t.Fatalf("NewSQLiteChatLog() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSQLiteChatLog_AppendAndRecent(t *testing.T) {
	l := newTestChatLog(t, 10)
	ctx := t.Context()

	at := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	first, err := l.Append(ctx, Message{Role: RoleUser, Text: "hi", Status: StatusComplete, CreatedAt: at})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	second, err := l.Append(ctx, Message{Role: RoleAssistant, Status: StatusPending})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Errorf("ids = %d, %d; want increasing", first.ID, second.ID)
	}

	got, err := l.Recent(ctx)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d messages, want 2", len(got))
	}
	if got[0].Text != "hi" || got[0].Role != RoleUser || !got[0].CreatedAt.Equal(at) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Status != StatusPending || got[1].CreatedAt.IsZero() {
		t.Errorf("second = %+v", got[1])
	}
}

func TestSQLiteChatLog_Trims(t *testing.T) {
	l := newTestChatLog(t, 3)
	ctx := t.Context()

	for i := 0; i < 7; i++ {
		if _, err := l.Append(ctx, Message{Role: RoleUser, Text: fmt.Sprint(i), Status: StatusComplete}); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	got, err := l.Recent(ctx)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("kept %d messages, want 3", len(got))
	}
	for i, want := range []string{"4", "5", "6"} {
		if got[i].Text != want {
			t.Errorf("message %d = %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestSQLiteChatLog_Finish(t *testing.T) {
	l := newTestChatLog(t, 5)
	ctx := t.Context()

	m, err := l.Append(ctx, Message{Role: RoleAssistant, Status: StatusPending})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Finish(ctx, m.ID, "done", StatusComplete); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	got, _ := l.Recent(ctx)
	if got[0].Text != "done" || got[0].Status != StatusComplete {
		t.Errorf("finished message = %+v", got[0])
	}

	if err := l.Finish(ctx, m.ID+100, "x", StatusFailed); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Finish(unknown) error = %v, want ErrMessageNotFound", err)
	}
}

func TestSQLiteChatLog_Clear(t *testing.T) {
	l := newTestChatLog(t, 5)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		l.Append(ctx, Message{Role: RoleUser, Text: "x", Status: StatusComplete})
	}
	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := l.Recent(ctx); len(got) != 0 {
		t.Errorf("Recent() after Clear = %+v", got)
	}
}

func TestSQLiteChatLog_Settings(t *testing.T) {
	l := newTestChatLog(t, 5)
	ctx := t.Context()

	if _, ok, err := l.LoadSettings(ctx); err != nil || ok {
		t.Fatalf("LoadSettings() on empty db = ok %v, err %v", ok, err)
	}

	for _, s := range []ChatSettings{
		{BaseURL: "https://a.example", APIKey: "k1", Model: "m1"},
		{BaseURL: "https://b.example", APIKey: "k2", Model: "m2"},
	} {
		if err := l.SaveSettings(ctx, s); err != nil {
			t.Fatalf("SaveSettings() error = %v", err)
		}
		got, ok, err := l.LoadSettings(ctx)
		if err != nil || !ok || got != s {
			t.Errorf("LoadSettings() = %+v, %v, %v; want %+v", got, ok, err, s)
		}
	}
}

func TestNewSQLiteChatLog_BadLimit(t *testing.T) {
	if _, err := NewSQLiteChatLog(t.Context(), filepath.Join(t.TempDir(), "chat.db"), 0); err == nil {
		t.Error("NewSQLiteChatLog(limit 0) succeeded")
	}
}
