package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorEvent     = 0x49bbbb
	colorCancelled = 0xFF0000
	colorReminder  = 0xFFAA00
)

// Gateway is the chat-platform surface the lifecycle controller and
// the reminder worker talk to. Tests substitute a fake.
type Gateway interface {
	PostAnnouncement(ev *Event) (messageID string, err error)
	UpdateAnnouncement(ev *Event) error
	DeleteAnnouncement(ev *Event) error
	SendJoinConfirmation(userID string, ev *Event) error
	SendCancellation(userID string, ev *Event) error
	SendReminder(userID, tierLabel string, eventDate time.Time, ev *Event) error
}

type discordGateway struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordGateway(session *discordgo.Session, channelID string) Gateway {
	return &discordGateway{session: session, channelID: channelID}
}

func discordTimestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

func embedTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// eventEmbed renders the public announcement.
func eventEmbed(ev *Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📅 " + eventTypeName(ev.Type),
		Color: colorEvent,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🗓️ Date & Time", Value: discordTimestamp(ev.Date, "F"), Inline: true},
			{Name: "⏰ Relative Time", Value: discordTimestamp(ev.Date, "R"), Inline: true},
			{Name: "👤 Organizer", Value: "<@" + ev.Organizer + ">", Inline: true},
		},
		Timestamp: embedTimestamp(),
	}
	if ev.Description != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "📝 Description", Value: ev.Description,
		})
	}
	embed.Fields = append(embed.Fields, participantsField(ev.Participants))
	return embed
}

func participantsField(participants []string) *discordgo.MessageEmbedField {
	if len(participants) == 0 {
		return &discordgo.MessageEmbedField{Name: "👥 Participants (0)", Value: "No participants yet"}
	}

	mentions := make([]string, len(participants))
	for i, id := range participants {
		mentions[i] = "<@" + id + ">"
	}
	list := strings.Join(mentions, "\n")
	// Discord caps embed field values at 1024 characters.
	if len(list) > 1024 {
		list = list[:1020] + "..."
	}
	return &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("👥 Participants (%d)", len(participants)),
		Value: list,
	}
}

// eventButtons regenerates the control row for a render. The delete
// control is only included when the viewer is the organizer.
func eventButtons(eventID, organizerID, viewerID string) []discordgo.MessageComponent {
	row := discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: "participate_" + eventID,
				Label:    "Participate",
				Style:    discordgo.PrimaryButton,
				Emoji:    &discordgo.ComponentEmoji{Name: "✅"},
			},
		},
	}
	if viewerID == organizerID {
		row.Components = append(row.Components, discordgo.Button{
			CustomID: "delete_" + eventID,
			Label:    "Delete Event",
			Style:    discordgo.DangerButton,
			Emoji:    &discordgo.ComponentEmoji{Name: "🗑️"},
		})
	}
	return []discordgo.MessageComponent{row}
}

func (g *discordGateway) PostAnnouncement(ev *Event) (string, error) {
	if _, err := g.session.State.Channel(g.channelID); err != nil {
		if _, err := g.session.Channel(g.channelID); err != nil {
			return "", ErrChannelUnavailable
		}
	}

	msg, err := g.session.ChannelMessageSendComplex(g.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{eventEmbed(ev)},
		Components: eventButtons(ev.ID, ev.Organizer, ev.Organizer),
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (g *discordGateway) UpdateAnnouncement(ev *Event) error {
	embeds := []*discordgo.MessageEmbed{eventEmbed(ev)}
	components := eventButtons(ev.ID, ev.Organizer, ev.Organizer)
	_, err := g.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         ev.MessageID,
		Channel:    g.channelID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func (g *discordGateway) DeleteAnnouncement(ev *Event) error {
	return g.session.ChannelMessageDelete(g.channelID, ev.MessageID)
}

func (g *discordGateway) sendDM(userID string, embed *discordgo.MessageEmbed) error {
	ch, err := g.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = g.session.ChannelMessageSendEmbed(ch.ID, embed)
	return err
}

func (g *discordGateway) SendJoinConfirmation(userID string, ev *Event) error {
	return g.sendDM(userID, &discordgo.MessageEmbed{
		Title:       "✅ Event Registration Confirmed",
		Description: fmt.Sprintf("You have successfully registered for: **%s**", eventTypeName(ev.Type)),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🗓️ Date & Time", Value: discordTimestamp(ev.Date, "F")},
			{Name: "⏰ Relative Time", Value: discordTimestamp(ev.Date, "R")},
		},
		Color:     colorEvent,
		Timestamp: embedTimestamp(),
	})
}

func (g *discordGateway) SendCancellation(userID string, ev *Event) error {
	return g.sendDM(userID, &discordgo.MessageEmbed{
		Title:       "❌ Event Cancelled",
		Description: fmt.Sprintf("The **%s** event you registered for has been cancelled by the organizer.", eventTypeName(ev.Type)),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Originally Scheduled", Value: discordTimestamp(ev.Date, "F")},
		},
		Color:     colorCancelled,
		Timestamp: embedTimestamp(),
	})
}

func (g *discordGateway) SendReminder(userID, tierLabel string, eventDate time.Time, ev *Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("⏰ Event Reminder - %s remaining", tierLabel),
		Description: fmt.Sprintf("Don't forget about the **%s** event!", eventTypeName(ev.Type)),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🗓️ Date & Time", Value: discordTimestamp(eventDate, "F")},
			{Name: "⏰ Time Remaining", Value: discordTimestamp(eventDate, "R")},
		},
		Color:     colorReminder,
		Timestamp: embedTimestamp(),
	}
	if ev.Description != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "📝 Description", Value: ev.Description,
		})
	}
	return g.sendDM(userID, embed)
}
