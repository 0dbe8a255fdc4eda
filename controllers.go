package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// -----------------------------
// Error taxonomy
// -----------------------------

// User-triggered errors are caught at the interaction boundary and
// turned into a private reply; none of them crashes the process.
var (
	ErrUnauthorized       = errors.New("You are not authorized to create events.")
	ErrForbidden          = errors.New("Only the event organizer can delete this event.")
	ErrEventNotFound      = errors.New("Event not found.")
	ErrAlreadyJoined      = errors.New("You are already participating in this event!")
	ErrChannelUnavailable = errors.New("Event channel not found.")
)

// -----------------------------
// Application context
// -----------------------------

// App holds every collaborator the bot needs. It is constructed once
// in main and passed explicitly; there is no package-level state.
type App struct {
	Config    *Config
	Store     EventStore
	Scheduler ReminderScheduler
	Gateway   Gateway

	locks keyedMutex
	now   func() time.Time
}

func NewApp(cfg *Config, store EventStore, scheduler ReminderScheduler, gateway Gateway) *App {
	return &App{
		Config:    cfg,
		Store:     store,
		Scheduler: scheduler,
		Gateway:   gateway,
		now:       time.Now,
	}
}

// keyedMutex serializes mutating operations per event id, so two near
// simultaneous joins cannot both read the participant list before
// either writes.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// forget drops the entry for a key that will never be locked again.
func (k *keyedMutex) forget(key string) {
	k.mu.Lock()
	delete(k.locks, key)
	k.mu.Unlock()
}

// -----------------------------
// Event lifecycle
// -----------------------------

// CreateEvent validates input and authorization, posts the public
// announcement, binds the returned message id and persists the event.
// Nothing is persisted if the channel cannot be resolved or the post
// fails; a persistence failure after a successful post leaves the
// tolerated announcement-without-record inconsistency and is surfaced,
// not masked.
func (a *App) CreateEvent(ctx context.Context, actorID, eventType, datetime, description string) (*Event, error) {
	if !isAuthorized(a.Config.AuthorizedUsers, actorID) {
		return nil, ErrUnauthorized
	}

	date, err := validateDateTime(datetime, a.now())
	if err != nil {
		return nil, err
	}

	ev := newEvent(eventType, date, actorID, description)

	messageID, err := a.Gateway.PostAnnouncement(ev)
	if err != nil {
		return nil, err
	}
	ev.MessageID = messageID

	if err := a.Store.Save(ctx, ev); err != nil {
		return nil, fmt.Errorf("could not persist event: %w", err)
	}
	return ev, nil
}

// JoinEvent appends the actor to the participant list, persists,
// schedules the actor's remaining reminder tiers and re-renders the
// announcement. Reminder scheduling, the re-render and the
// confirmation DM are best effort: their failure never rolls back the
// join.
func (a *App) JoinEvent(ctx context.Context, actorID, eventID string) (*Event, error) {
	lock := a.locks.lock(eventID)
	defer lock.Unlock()

	ev, err := a.Store.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if ev.hasParticipant(actorID) {
		return nil, ErrAlreadyJoined
	}

	ev.Participants = append(ev.Participants, actorID)
	if err := a.Store.Save(ctx, ev); err != nil {
		return nil, fmt.Errorf("could not save join: %w", err)
	}

	if err := a.Scheduler.ScheduleReminders(ctx, ev.ID, ev.Date, []string{actorID}); err != nil {
		log.Printf("ERROR scheduling reminders for %s: %v", ev.ID, err)
	}

	if err := a.Gateway.UpdateAnnouncement(ev); err != nil {
		log.Printf("ERROR updating announcement for %s: %v", ev.ID, err)
	}

	if err := a.Gateway.SendJoinConfirmation(actorID, ev); err != nil {
		log.Printf("Could not send confirmation DM to %s: %v", actorID, err)
	}

	return ev, nil
}

// DeleteEvent tears an event down in an order that is safe under
// partial failure: reminders are cancelled and participants notified
// before the record is removed, and the announcement goes last.
func (a *App) DeleteEvent(ctx context.Context, actorID, eventID string) error {
	lock := a.locks.lock(eventID)
	defer lock.Unlock()

	ev, err := a.Store.Get(ctx, eventID)
	if err != nil {
		return err
	}

	if actorID != ev.Organizer {
		return ErrForbidden
	}

	if err := a.Scheduler.CancelEventReminders(ctx, ev.ID); err != nil {
		log.Printf("ERROR cancelling reminders for %s: %v", ev.ID, err)
	}

	a.notifyCancellation(ev)

	if err := a.Store.Delete(ctx, ev.ID); err != nil {
		return fmt.Errorf("could not delete event: %w", err)
	}

	if err := a.Gateway.DeleteAnnouncement(ev); err != nil {
		log.Printf("ERROR deleting announcement for %s: %v", ev.ID, err)
	}

	a.locks.forget(ev.ID)
	return nil
}

// notifyCancellation fans a cancellation DM out to every participant
// except the organizer. One recipient's failure never aborts the
// batch.
func (a *App) notifyCancellation(ev *Event) {
	var wg sync.WaitGroup
	for _, participantID := range ev.Participants {
		if participantID == ev.Organizer {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := a.Gateway.SendCancellation(id, ev); err != nil {
				log.Printf("Could not send cancellation DM to %s: %v", id, err)
			}
		}(participantID)
	}
	wg.Wait()
}

// -----------------------------
// Debug operations
// -----------------------------

func (a *App) ListEvents(ctx context.Context) ([]*Event, error) {
	ids, err := a.Store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, err := a.Store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrEventNotFound) {
				continue
			}
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// PurgeEvents cancels reminders for and removes every stored event.
func (a *App) PurgeEvents(ctx context.Context) (int, error) {
	ids, err := a.Store.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := a.Scheduler.CancelEventReminders(ctx, id); err != nil {
			log.Printf("ERROR cancelling reminders for %s: %v", id, err)
		}
		if err := a.Store.Delete(ctx, id); err != nil {
			return 0, err
		}
		a.locks.forget(id)
	}
	return len(ids), nil
}
