package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

func minValue(v float64) *float64 { return &v }

func commandDefinitions() []*discordgo.ApplicationCommand {
	typeChoices := make([]*discordgo.ApplicationCommandOptionChoice, len(EventTypes))
	for i, t := range EventTypes {
		typeChoices[i] = &discordgo.ApplicationCommandOptionChoice{Name: t.Name, Value: t.Value}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "create-event",
			Description: "Create a new FF14 event",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "type",
					Description: "Type of event",
					Required:    true,
					Choices:     typeChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "datetime",
					Description: "Date and time (YYYY-MM-DD HH:MM UTC)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "description",
					Description: "Additional event description (optional)",
				},
			},
		},
		{
			Name:        "roll",
			Description: "Roll a dice with animation!",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "sides",
					Description: "Number of sides on the dice (default: 6)",
					MinValue:    minValue(2),
					MaxValue:    100,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "Number of dice to roll (default: 1)",
					MinValue:    minValue(1),
					MaxValue:    10,
				},
			},
		},
		{
			Name:        "pvp",
			Description: "Calculate PvP Malmstone requirements",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "current_level",
					Description: "Your current PvP level (1-40)",
					Required:    true,
					MinValue:    minValue(1),
					MaxValue:    40,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "goal_level",
					Description: "Your target PvP level (1-40)",
					Required:    true,
					MinValue:    minValue(1),
					MaxValue:    40,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "current_progress",
					Description: "Your current XP progress in current level (default: 0)",
					MinValue:    minValue(0),
				},
			},
		},
		{Name: "list-events", Description: "List all active events (debug)"},
		{Name: "purge-events", Description: "Purge all events (debug)"},
	}
}

func RegisterCommands(s *discordgo.Session, appID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, "", commandDefinitions())
	return err
}

// -----------------------------
// Interaction plumbing
// -----------------------------

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func ephemeralReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("ERROR sending interaction reply: %v", err)
	}
}

func editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	if err != nil {
		log.Printf("ERROR editing interaction reply: %v", err)
	}
}

func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// parseCustomID splits a control id like "participate_{eventId}" into
// its action prefix and event id. Event ids may themselves contain
// underscores, so only the first separator counts.
func parseCustomID(customID string) (action, eventID string) {
	parts := strings.SplitN(customID, "_", 2)
	if len(parts) != 2 {
		return customID, ""
	}
	return parts[0], parts[1]
}

var userFacingErrors = []error{
	ErrUnauthorized,
	ErrForbidden,
	ErrEventNotFound,
	ErrAlreadyJoined,
	ErrChannelUnavailable,
	ErrDateTimeFormat,
	ErrDateTimeParse,
	ErrDateTimePast,
}

// userMessage picks the reply text for a failed action. A wrapped
// sentinel surfaces only the sentinel's own text, never the wrapping
// context.
func userMessage(err error) string {
	for _, sentinel := range userFacingErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "An error occurred while executing the command."
}

// -----------------------------
// Dispatch
// -----------------------------

// OnInteraction routes slash commands and button clicks. Every failure
// path ends in a short, private reply to the acting user.
func (a *App) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		a.onCommand(s, i)
	case discordgo.InteractionMessageComponent:
		a.onButton(s, i)
	}
}

func (a *App) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.ApplicationCommandData().Name {
	case "create-event":
		a.handleCreateEvent(s, i)
	case "roll":
		a.handleRoll(s, i)
	case "pvp":
		a.handlePvP(s, i)
	case "list-events":
		a.handleListEvents(s, i)
	case "purge-events":
		a.handlePurgeEvents(s, i)
	default:
		ephemeralReply(s, i, "An error occurred while executing the command.")
	}
}

func (a *App) handleCreateEvent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)
	eventType := opts["type"].StringValue()
	datetime := opts["datetime"].StringValue()
	description := ""
	if o, ok := opts["description"]; ok {
		description = o.StringValue()
	}

	ev, err := a.CreateEvent(context.Background(), interactionUserID(i), eventType, datetime, description)
	if err != nil {
		switch {
		case errors.Is(err, ErrChannelUnavailable):
			ephemeralReply(s, i, fmt.Sprintf("❌ Event channel not found. (ID: %s)", a.Config.EventChannelID))
		case errors.Is(err, ErrUnauthorized),
			errors.Is(err, ErrDateTimeFormat),
			errors.Is(err, ErrDateTimeParse),
			errors.Is(err, ErrDateTimePast):
			ephemeralReply(s, i, "❌ "+err.Error())
		default:
			log.Printf("Error creating event: %v", err)
			ephemeralReply(s, i, "❌ Failed to create event.")
		}
		return
	}

	ephemeralReply(s, i, fmt.Sprintf("✅ Event created successfully! Check <#%s>", a.Config.EventChannelID))
	log.Printf("Event %s created by %s for %s", ev.ID, ev.Organizer, ev.Date.Format("2006-01-02 15:04"))
}

func (a *App) onButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	action, eventID := parseCustomID(i.MessageComponentData().CustomID)
	userID := interactionUserID(i)

	switch action {
	case "participate":
		if _, err := a.JoinEvent(context.Background(), userID, eventID); err != nil {
			if errors.Is(err, ErrAlreadyJoined) {
				ephemeralReply(s, i, "⚠️ "+err.Error())
				return
			}
			ephemeralReply(s, i, "❌ "+userMessage(err))
			return
		}
		// The announcement was already re-rendered; acknowledge the
		// click without posting anything new.
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		if err != nil {
			log.Printf("ERROR acknowledging join: %v", err)
		}

	case "delete":
		if err := a.DeleteEvent(context.Background(), userID, eventID); err != nil {
			ephemeralReply(s, i, "❌ "+userMessage(err))
			return
		}
		ephemeralReply(s, i, "✅ Event deleted successfully.")

	default:
		ephemeralReply(s, i, "An error occurred while handling the button interaction.")
	}
}

func (a *App) handleListEvents(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAuthorized(a.Config.AuthorizedUsers, interactionUserID(i)) {
		ephemeralReply(s, i, "❌ You are not authorized to use this command.")
		return
	}

	events, err := a.ListEvents(context.Background())
	if err != nil {
		log.Printf("Error listing events: %v", err)
		ephemeralReply(s, i, "An error occurred while executing the command.")
		return
	}
	if len(events) == 0 {
		ephemeralReply(s, i, "No active events found.")
		return
	}

	var b strings.Builder
	b.WriteString("**Active Events:**\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "• **ID:** %s\n  **Type:** %s\n  **Date:** %s\n  **Organizer:** <@%s>\n  **Participants:** %d\n\n",
			ev.ID, ev.Type, discordTimestamp(ev.Date, "F"), ev.Organizer, len(ev.Participants))
	}
	ephemeralReply(s, i, b.String())
}

func (a *App) handlePurgeEvents(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAuthorized(a.Config.AuthorizedUsers, interactionUserID(i)) {
		ephemeralReply(s, i, "❌ You are not authorized to use this command.")
		return
	}

	n, err := a.PurgeEvents(context.Background())
	if err != nil {
		log.Printf("Error purging events: %v", err)
		ephemeralReply(s, i, "An error occurred while executing the command.")
		return
	}
	log.Printf("All events purged (%d)", n)
	ephemeralReply(s, i, "✅ All events purged (debug).")
}
