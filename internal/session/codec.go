package session

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
)

type record struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Project     *string `json:"project"`
	History     []turn  `json:"history"`
	LastUpdated string  `json:"last_updated"`
}

type turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Records written by older tools carry naive local timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func encode(s *domain.ChatSession) ([]byte, error) {
	r := record{
		ID:          s.ID,
		Name:        s.Name,
		Project:     s.Project,
		History:     make([]turn, len(s.History)),
		LastUpdated: formatTime(s.LastUpdated),
	}
	for i, t := range s.History {
		r.History[i] = turn{Role: string(t.Role), Content: t.Content, Timestamp: formatTime(t.Timestamp)}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode session", goerr.V("id", s.ID))
	}
	return data, nil
}

func decode(data []byte) (*domain.ChatSession, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session")
	}
	if r.ID == "" {
		return nil, goerr.New("session record has no id")
	}
	updated, err := parseTime(r.LastUpdated)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid last_updated", goerr.V("id", r.ID), goerr.V("value", r.LastUpdated))
	}
	s := &domain.ChatSession{
		ID:          r.ID,
		Name:        r.Name,
		History:     make([]domain.Turn, len(r.History)),
		LastUpdated: updated,
	}
	if r.Project != nil {
		s.SetProjectName(*r.Project)
	}
	for i, t := range r.History {
		ts, err := parseTime(t.Timestamp)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid turn timestamp", goerr.V("id", r.ID), goerr.V("turn", i))
		}
		s.History[i] = domain.Turn{Role: domain.Role(t.Role), Content: t.Content, Timestamp: ts}
	}
	return s, nil
}
