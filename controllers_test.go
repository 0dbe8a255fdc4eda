package main

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

// -----------------------------
// Fakes
// -----------------------------

type fakeStore struct {
	events  map[string]*Event
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[string]*Event{}}
}

func copyEvent(ev *Event) *Event {
	cp := *ev
	cp.Participants = append([]string(nil), ev.Participants...)
	return &cp
}

func (f *fakeStore) Save(_ context.Context, ev *Event) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.events[ev.ID] = copyEvent(ev)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return copyEvent(ev), nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	delete(f.events, id)
	return nil
}

func (f *fakeStore) ListIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.events))
	for id := range f.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type scheduleCall struct {
	eventID      string
	participants []string
}

type fakeScheduler struct {
	scheduled []scheduleCall
	cancelled []string
}

func (f *fakeScheduler) ScheduleReminders(_ context.Context, eventID string, _ time.Time, participants []string) error {
	f.scheduled = append(f.scheduled, scheduleCall{eventID: eventID, participants: participants})
	return nil
}

func (f *fakeScheduler) CancelEventReminders(_ context.Context, eventID string) error {
	f.cancelled = append(f.cancelled, eventID)
	return nil
}

type fakeGateway struct {
	posted        int
	postErr       error
	updated       int
	deletedMsgs   int
	confirmations []string
	cancellations []string
	reminders     []string
	reminderErr   error
	dmErr         error
}

func (f *fakeGateway) PostAnnouncement(_ *Event) (string, error) {
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posted++
	return "msg-1", nil
}

func (f *fakeGateway) UpdateAnnouncement(_ *Event) error {
	f.updated++
	return nil
}

func (f *fakeGateway) DeleteAnnouncement(_ *Event) error {
	f.deletedMsgs++
	return nil
}

func (f *fakeGateway) SendJoinConfirmation(userID string, _ *Event) error {
	if f.dmErr != nil {
		return f.dmErr
	}
	f.confirmations = append(f.confirmations, userID)
	return nil
}

func (f *fakeGateway) SendCancellation(userID string, _ *Event) error {
	if f.dmErr != nil {
		return f.dmErr
	}
	f.cancellations = append(f.cancellations, userID)
	return nil
}

func (f *fakeGateway) SendReminder(userID, tierLabel string, _ time.Time, _ *Event) error {
	if f.reminderErr != nil {
		return f.reminderErr
	}
	f.reminders = append(f.reminders, userID+"|"+tierLabel)
	return nil
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestApp(store *fakeStore, sched *fakeScheduler, gw *fakeGateway) *App {
	cfg := &Config{
		EventChannelID:  "chan-1",
		AuthorizedUsers: []string{"organizer"},
	}
	app := NewApp(cfg, store, sched, gw)
	app.now = func() time.Time { return testNow }
	return app
}

func storedEvent(store *fakeStore, organizer string, participants ...string) *Event {
	ev := newEvent("maps", testNow.Add(48*time.Hour), organizer, "")
	ev.MessageID = "msg-1"
	ev.Participants = append(ev.Participants, participants...)
	store.events[ev.ID] = ev
	return ev
}

// -----------------------------
// Create
// -----------------------------

func TestCreateEventUnauthorized(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	app := newTestApp(store, &fakeScheduler{}, gw)

	_, err := app.CreateEvent(context.Background(), "rando", "maps", "2025-06-20 18:00", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if gw.posted != 0 {
		t.Fatalf("announcement posted despite unauthorized actor")
	}
	if len(store.events) != 0 {
		t.Fatalf("event persisted despite unauthorized actor")
	}
}

func TestCreateEventInvalidDatetime(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	app := newTestApp(store, &fakeScheduler{}, gw)

	_, err := app.CreateEvent(context.Background(), "organizer", "maps", "tomorrow-ish", "")
	if !errors.Is(err, ErrDateTimeFormat) {
		t.Fatalf("error = %v, want ErrDateTimeFormat", err)
	}
	if gw.posted != 0 || len(store.events) != 0 {
		t.Fatalf("side effects after invalid datetime")
	}
}

func TestCreateEventChannelUnavailable(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{postErr: ErrChannelUnavailable}
	app := newTestApp(store, &fakeScheduler{}, gw)

	_, err := app.CreateEvent(context.Background(), "organizer", "maps", "2025-06-20 18:00", "")
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("error = %v, want ErrChannelUnavailable", err)
	}
	if len(store.events) != 0 {
		t.Fatalf("event persisted despite missing channel")
	}
}

func TestCreateEventBindsMessageID(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	app := newTestApp(store, &fakeScheduler{}, gw)

	ev, err := app.CreateEvent(context.Background(), "organizer", "savage_raids", "2025-06-20 18:00", "bring food")
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if ev.MessageID != "msg-1" {
		t.Fatalf("MessageID = %q, want msg-1", ev.MessageID)
	}
	if ev.Organizer != "organizer" {
		t.Fatalf("Organizer = %q", ev.Organizer)
	}
	if !ev.Date.Equal(time.Date(2025, 6, 20, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("Date = %v", ev.Date)
	}
	stored, err := store.Get(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("stored event: %v", err)
	}
	if stored.MessageID != "msg-1" {
		t.Fatalf("stored MessageID = %q", stored.MessageID)
	}
	if len(stored.Participants) != 0 {
		t.Fatalf("new event has participants: %v", stored.Participants)
	}
}

// -----------------------------
// Join
// -----------------------------

func TestJoinEventNotFound(t *testing.T) {
	app := newTestApp(newFakeStore(), &fakeScheduler{}, &fakeGateway{})

	_, err := app.JoinEvent(context.Background(), "u1", "event_missing")
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("error = %v, want ErrEventNotFound", err)
	}
}

func TestJoinEventSchedulesOnlyNewParticipant(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	gw := &fakeGateway{}
	app := newTestApp(store, sched, gw)
	ev := storedEvent(store, "organizer", "u1")

	got, err := app.JoinEvent(context.Background(), "u2", ev.ID)
	if err != nil {
		t.Fatalf("JoinEvent: %v", err)
	}
	if want := []string{"u1", "u2"}; len(got.Participants) != 2 || got.Participants[0] != want[0] || got.Participants[1] != want[1] {
		t.Fatalf("Participants = %v, want %v", got.Participants, want)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("schedule calls = %d, want 1", len(sched.scheduled))
	}
	if call := sched.scheduled[0]; call.eventID != ev.ID || len(call.participants) != 1 || call.participants[0] != "u2" {
		t.Fatalf("scheduled %+v, want just u2 on %s", call, ev.ID)
	}
	if gw.updated != 1 {
		t.Fatalf("announcement updates = %d, want 1", gw.updated)
	}
	if len(gw.confirmations) != 1 || gw.confirmations[0] != "u2" {
		t.Fatalf("confirmations = %v", gw.confirmations)
	}
}

func TestJoinEventIdempotent(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	app := newTestApp(store, sched, &fakeGateway{})
	ev := storedEvent(store, "organizer")

	if _, err := app.JoinEvent(context.Background(), "u1", ev.ID); err != nil {
		t.Fatalf("first join: %v", err)
	}
	_, err := app.JoinEvent(context.Background(), "u1", ev.ID)
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("second join error = %v, want ErrAlreadyJoined", err)
	}

	stored, _ := store.Get(context.Background(), ev.ID)
	if len(stored.Participants) != 1 {
		t.Fatalf("Participants = %v, want exactly one entry", stored.Participants)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("schedule calls = %d, want 1 (no duplicate jobs)", len(sched.scheduled))
	}
}

func TestJoinEventConfirmationFailureDoesNotRollBack(t *testing.T) {
	store := newFakeStore()
	app := newTestApp(store, &fakeScheduler{}, &fakeGateway{dmErr: errors.New("dm closed")})
	ev := storedEvent(store, "organizer")

	if _, err := app.JoinEvent(context.Background(), "u1", ev.ID); err != nil {
		t.Fatalf("JoinEvent: %v", err)
	}
	stored, _ := store.Get(context.Background(), ev.ID)
	if !stored.hasParticipant("u1") {
		t.Fatalf("join rolled back on DM failure")
	}
}

// -----------------------------
// Delete
// -----------------------------

func TestDeleteEventForbidden(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	app := newTestApp(store, sched, &fakeGateway{})
	ev := storedEvent(store, "organizer", "u1")

	err := app.DeleteEvent(context.Background(), "u1", ev.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
	if _, err := store.Get(context.Background(), ev.ID); err != nil {
		t.Fatalf("event removed despite forbidden actor")
	}
	if len(sched.cancelled) != 0 {
		t.Fatalf("reminders cancelled despite forbidden actor")
	}
}

func TestDeleteEventTeardown(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	gw := &fakeGateway{}
	app := newTestApp(store, sched, gw)
	ev := storedEvent(store, "organizer", "organizer", "u1", "u2")

	if err := app.DeleteEvent(context.Background(), "organizer", ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	if _, err := store.Get(context.Background(), ev.ID); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("event still present after delete")
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != ev.ID {
		t.Fatalf("cancelled = %v, want [%s]", sched.cancelled, ev.ID)
	}
	if gw.deletedMsgs != 1 {
		t.Fatalf("announcement deletions = %d, want 1", gw.deletedMsgs)
	}

	// The organizer never receives their own cancellation notice.
	sort.Strings(gw.cancellations)
	if len(gw.cancellations) != 2 || gw.cancellations[0] != "u1" || gw.cancellations[1] != "u2" {
		t.Fatalf("cancellations = %v, want [u1 u2]", gw.cancellations)
	}
}

func TestDeleteEventReleasesLock(t *testing.T) {
	store := newFakeStore()
	app := newTestApp(store, &fakeScheduler{}, &fakeGateway{})
	ev := storedEvent(store, "organizer", "u1")

	if _, err := app.JoinEvent(context.Background(), "u2", ev.ID); err != nil {
		t.Fatalf("JoinEvent: %v", err)
	}
	if err := app.DeleteEvent(context.Background(), "organizer", ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, ok := app.locks.locks[ev.ID]; ok {
		t.Fatalf("per-event lock retained after delete")
	}
}

func TestDeleteEventNotFound(t *testing.T) {
	app := newTestApp(newFakeStore(), &fakeScheduler{}, &fakeGateway{})

	err := app.DeleteEvent(context.Background(), "organizer", "event_missing")
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("error = %v, want ErrEventNotFound", err)
	}
}

// -----------------------------
// Debug operations
// -----------------------------

func TestPurgeEvents(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	app := newTestApp(store, sched, &fakeGateway{})
	storedEvent(store, "organizer", "u1")
	storedEvent(store, "organizer", "u2")

	n, err := app.PurgeEvents(context.Background())
	if err != nil {
		t.Fatalf("PurgeEvents: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged = %d, want 2", n)
	}
	if len(store.events) != 0 {
		t.Fatalf("events remain after purge: %d", len(store.events))
	}
	if len(sched.cancelled) != 2 {
		t.Fatalf("cancel calls = %d, want 2", len(sched.cancelled))
	}
}

func TestListEventsSkipsRacedDeletes(t *testing.T) {
	store := newFakeStore()
	app := newTestApp(store, &fakeScheduler{}, &fakeGateway{})
	ev := storedEvent(store, "organizer")

	events, err := app.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != ev.ID {
		t.Fatalf("events = %v", events)
	}
}
