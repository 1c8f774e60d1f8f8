package service

import (
	"time"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"

	dayLabelLayout  = "02/01/2006"
	timeLabelLayout = "3:04 PM"
)

// MessageView is a message as rendered in a room.
type MessageView struct {
	Key        string               `json:"key"`
	MessageID  string               `json:"message_id"`
	SenderID   string               `json:"sender_id"`
	SenderName string               `json:"sender_name"`
	Type       domain.MessageType   `json:"type"`
	Text       string               `json:"text,omitempty"`
	URL        string               `json:"url,omitempty"`
	State      domain.DeliveryState `json:"state"`
	Outgoing   bool                 `json:"outgoing"`
	Timestamp  time.Time            `json:"timestamp"`
	TimeLabel  string               `json:"time_label"`
}

type DateGroup struct {
	Label    string        `json:"label"`
	Messages []MessageView `json:"messages"`
}

// GroupByDate buckets msgs by local calendar day. Buckets appear in the
// order they were first populated and keep arrival order inside; nothing
// is re-sorted by timestamp.
func GroupByDate(msgs []*domain.Message, viewer string, now time.Time, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	var groups []DateGroup
	index := make(map[string]int)
	for _, m := range msgs {
		ts := m.Timestamp.In(loc)
		label := dayLabel(ts, now)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, DateGroup{Label: label})
		}
		groups[i].Messages = append(groups[i].Messages, MessageView{
			Key:        m.Key,
			MessageID:  m.MessageID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Type:       m.Type,
			Text:       m.Plaintext,
			URL:        m.URL,
			State:      m.State(),
			Outgoing:   m.SenderID == viewer,
			Timestamp:  m.Timestamp,
			TimeLabel:  ts.Format(timeLabelLayout),
		})
	}
	return groups
}

func dayLabel(ts, now time.Time) string {
	if sameDay(ts, now) {
		return LabelToday
	}
	if sameDay(ts, now.AddDate(0, 0, -1)) {
		return LabelYesterday
	}
	return ts.Format(dayLabelLayout)
}

// PreviewTimeLabel formats the timestamp shown next to a chat list entry.
func PreviewTimeLabel(ts, now time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	ts, now = ts.In(loc), now.In(loc)
	switch {
	case sameDay(ts, now):
		return ts.Format("03:04 PM")
	case sameDay(ts, now.AddDate(0, 0, -1)):
		return LabelYesterday
	case ts.Year() == now.Year():
		return ts.Format("Jan 2")
	}
	return ts.Format(dayLabelLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
