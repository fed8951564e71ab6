package chat_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/models"
)

func at(minute int) time.Time {
	return time.Date(2025, 1, 1, 9, minute, 0, 0, time.UTC)
}

func membershipWindow(roomID uuid.UUID, joined int, left *int) models.Membership {
	m := models.Membership{
		ID:          uuid.New(),
		RoomID:      roomID,
		Participant: user("alice"),
		JoinedAt:    at(joined),
	}
	if left != nil {
		t := at(*left)
		m.LeftAt = &t
	}
	return m
}

func message(roomID uuid.UUID, id int64, minute int) models.Message {
	return models.Message{
		ID:        id,
		RoomID:    roomID,
		Body:      "hello",
		CreatedAt: at(minute),
		UpdatedAt: at(minute),
	}
}

func TestIsVisibleBoundedMembership(t *testing.T) {
	roomID := uuid.New()
	left := 20
	m := membershipWindow(roomID, 10, &left)

	cases := []struct {
		minute int
		want   bool
	}{
		{5, false},  // before join
		{10, true},  // join instant, inclusive
		{15, true},  // inside
		{18, true},  // inside
		{20, true},  // leave instant, inclusive
		{25, false}, // after leave
	}
	for _, tc := range cases {
		got := chat.IsVisible(message(roomID, 1, tc.minute), m)
		if got != tc.want {
			t.Errorf("message at minute %d: visible = %v, want %v", tc.minute, got, tc.want)
		}
	}
}

func TestIsVisibleActiveMembershipOpenEnded(t *testing.T) {
	roomID := uuid.New()
	m := membershipWindow(roomID, 10, nil)

	if chat.IsVisible(message(roomID, 1, 5), m) {
		t.Error("message before join should not be visible")
	}
	if !chat.IsVisible(message(roomID, 2, 500), m) {
		t.Error("active membership should see arbitrarily late messages")
	}
}

func TestIsVisibleDeletedMessage(t *testing.T) {
	roomID := uuid.New()
	m := membershipWindow(roomID, 0, nil)

	msg := message(roomID, 1, 15)
	deleted := at(16)
	msg.DeletedAt = &deleted
	msg.Body = ""

	if chat.IsVisible(msg, m) {
		t.Error("deleted message should never be visible")
	}
}

func TestIsVisibleOtherRoom(t *testing.T) {
	m := membershipWindow(uuid.New(), 0, nil)
	if chat.IsVisible(message(uuid.New(), 1, 15), m) {
		t.Error("message in another room should not be visible")
	}
}

func TestWindowOfIncludeBeforeJoined(t *testing.T) {
	roomID := uuid.New()
	left := 20
	m := membershipWindow(roomID, 10, &left)

	w := chat.WindowOf(m, true)
	if !w.From.IsZero() {
		t.Errorf("lower bound should be lifted, got %v", w.From)
	}
	if w.To == nil || !w.To.Equal(at(20)) {
		t.Errorf("upper bound should stay at leave time, got %v", w.To)
	}

	// Lifting the lower bound must not leak post-leave messages.
	if w.Contains(at(25)) {
		t.Error("window should still exclude messages after leave")
	}
	if !w.Contains(at(5)) {
		t.Error("window should include messages before join")
	}
}

func TestWindowsForRejoinUnion(t *testing.T) {
	roomID := uuid.New()
	firstLeft := 20
	first := membershipWindow(roomID, 10, &firstLeft)
	second := membershipWindow(roomID, 40, nil)

	windows := chat.WindowsFor([]models.Membership{first, second}, false)[roomID]
	if len(windows) != 2 {
		t.Fatalf("expected 2 disjoint windows, got %d", len(windows))
	}

	cases := []struct {
		minute int
		want   bool
	}{
		{5, false},  // before first join
		{15, true},  // first stint
		{30, false}, // the gap
		{45, true},  // second stint
	}
	for _, tc := range cases {
		got := chat.VisibleInAny(message(roomID, 1, tc.minute), windows)
		if got != tc.want {
			t.Errorf("message at minute %d: visible = %v, want %v", tc.minute, got, tc.want)
		}
	}
}

func TestUnreadPredicate(t *testing.T) {
	roomID := uuid.New()
	m := membershipWindow(roomID, 0, nil)
	read := at(10)
	m.LastReadAt = &read

	sender := uuid.New()
	other := message(roomID, 1, 15)
	other.SenderMembershipID = &sender

	own := message(roomID, 2, 15)
	own.SenderMembershipID = &m.ID

	old := message(roomID, 3, 5)
	old.SenderMembershipID = &sender

	boundary := message(roomID, 4, 10)
	boundary.SenderMembershipID = &sender

	system := message(roomID, 5, 15)

	pred := chat.UnreadPredicate(m, false)
	if !pred(other) {
		t.Error("unseen message from someone else should count")
	}
	if pred(own) {
		t.Error("own message should never count")
	}
	if pred(old) {
		t.Error("message before last read should not count")
	}
	if pred(boundary) {
		t.Error("message exactly at last read should not count")
	}
	if pred(system) {
		t.Error("system message should not count by default")
	}
	if !chat.UnreadPredicate(m, true)(system) {
		t.Error("system message should count when included")
	}
}
