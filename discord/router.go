package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/endervision20/availability-bot/availability"
	"github.com/endervision20/availability-bot/telemetry"
)

// Command and component identifiers.
const (
	SetupCommand = "setupavailability"

	SetAvailabilityID    = "set_availability"
	ChangeGameID         = "change_game"
	ChangeTimeID         = "change_time"
	RemoveAvailabilityID = "remove_availability"

	AvailabilityModalID = "availability_modal"
	GameInputID         = "game_input"
	DurationInputID     = "duration_input"

	ChangeGameModalID = "change_game_modal"
	NewGameInputID    = "new_game_input"

	ChangeTimeModalID  = "change_time_modal"
	NewDurationInputID = "new_duration_input"
)

// durationMaxLength fits the digits of availability.MaxDurationMinutes.
const durationMaxLength = 6

// Reply texts.
const (
	replyNotAvailable = "You are not currently available."
	replyInvalid      = "Invalid duration."
	replyInvalidGame  = "Invalid game."
	replyRemoved      = "Your availability has been removed."
	replyPanelCreated = "Availability panel created!"
	replyError        = "Error occurred."
)

// Actions is what the router needs from the availability service.
type Actions interface {
	SetupPanel(ctx context.Context, guildID, channelID string) (availability.PanelRef, error)
	Manage(userID string) (availability.Entry, bool)
	Set(ctx context.Context, userID, activity, durationInput string) (availability.Entry, error)
	ChangeActivity(ctx context.Context, userID, activity string) (availability.Entry, error)
	ChangeDuration(ctx context.Context, userID, durationInput string) (availability.Entry, error)
	Remove(ctx context.Context, userID string) (bool, error)
}

// Kind is the interaction category.
type Kind int

const (
	KindCommand Kind = iota
	KindButton
	KindModal
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindButton:
		return "button"
	case KindModal:
		return "modal"
	}
	return "unknown"
}

// Event is a platform-neutral view of an interaction.
type Event struct {
	Kind      Kind
	Name      string // command name or component/modal custom ID
	UserID    string
	GuildID   string
	ChannelID string
	Values    map[string]string // modal text inputs by custom ID
}

// eventFrom extracts an Event. ok is false for interactions the bot does not handle.
func eventFrom(i *discordgo.Interaction) (Event, bool) {
	ev := Event{GuildID: i.GuildID, ChannelID: i.ChannelID}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID = i.Member.User.ID
	case i.User != nil:
		ev.UserID = i.User.ID
	}
	if ev.UserID == "" {
		return Event{}, false
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		ev.Kind = KindCommand
		ev.Name = i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		ev.Kind = KindButton
		ev.Name = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = KindModal
		ev.Name = data.CustomID
		ev.Values = textInputs(data.Components)
	default:
		return Event{}, false
	}
	return ev, true
}

func textInputs(components []discordgo.MessageComponent) map[string]string {
	out := make(map[string]string)
	for _, c := range components {
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			for k, val := range textInputs(v.Components) {
				out[k] = val
			}
		case discordgo.ActionsRow:
			for k, val := range textInputs(v.Components) {
				out[k] = val
			}
		case *discordgo.TextInput:
			out[v.CustomID] = v.Value
		case discordgo.TextInput:
			out[v.CustomID] = v.Value
		}
	}
	return out
}

// Router maps events to service calls and replies.
type Router struct {
	svc Actions
}

// NewRouter returns a router over svc.
func NewRouter(svc Actions) *Router {
	return &Router{svc: svc}
}

// Handle serves one event. A nil response means the event is not ours and
// gets no reply.
func (r *Router) Handle(ctx context.Context, ev Event) *discordgo.InteractionResponse {
	switch ev.Kind {
	case KindCommand:
		if ev.Name == SetupCommand {
			return r.setup(ctx, ev)
		}
	case KindButton:
		switch ev.Name {
		case availability.ManageControlID:
			return r.manage(ev)
		case SetAvailabilityID:
			return modal(AvailabilityModalID, "Set Your Availability",
				textInput(GameInputID, "Game", availability.MaxActivityLength),
				textInput(DurationInputID, "Duration (minutes)", durationMaxLength))
		case ChangeGameID:
			return modal(ChangeGameModalID, "Change Game", textInput(NewGameInputID, "New Game", availability.MaxActivityLength))
		case ChangeTimeID:
			return modal(ChangeTimeModalID, "Change Availability Time", textInput(NewDurationInputID, "Duration (minutes)", durationMaxLength))
		case RemoveAvailabilityID:
			return r.remove(ctx, ev)
		}
	case KindModal:
		switch ev.Name {
		case AvailabilityModalID:
			return r.submitSet(ctx, ev)
		case ChangeGameModalID:
			return r.submitGame(ctx, ev)
		case ChangeTimeModalID:
			return r.submitTime(ctx, ev)
		}
	}
	return nil
}

func (r *Router) setup(ctx context.Context, ev Event) *discordgo.InteractionResponse {
	if _, err := r.svc.SetupPanel(ctx, ev.GuildID, ev.ChannelID); err != nil {
		// The panel is live even when only the reference write failed.
		if !errors.Is(err, availability.ErrPersistence) {
			return failure(ctx, "setup", err)
		}
		telemetry.LoggerWithCorr(ctx).Warn("panel created but reference not saved", slog.Any("err", err))
	}
	return ephemeral(replyPanelCreated)
}

func (r *Router) manage(ev Event) *discordgo.InteractionResponse {
	e, ok := r.svc.Manage(ev.UserID)
	if !ok {
		return ephemeral(replyNotAvailable, availability.Control{ID: SetAvailabilityID, Label: "Set Availability"})
	}
	return ephemeral(fmt.Sprintf("You're available for **%s** until %s", e.Activity, availability.ShortTime(e.ExpiresAt)),
		availability.Control{ID: ChangeGameID, Label: "Change Game"},
		availability.Control{ID: ChangeTimeID, Label: "Change Time"},
		availability.Control{ID: RemoveAvailabilityID, Label: "Remove Availability", Style: availability.StyleDanger},
	)
}

func (r *Router) remove(ctx context.Context, ev Event) *discordgo.InteractionResponse {
	if _, err := r.svc.Remove(ctx, ev.UserID); err != nil {
		return failure(ctx, "remove", err)
	}
	return ephemeral(replyRemoved)
}

func (r *Router) submitSet(ctx context.Context, ev Event) *discordgo.InteractionResponse {
	e, err := r.svc.Set(ctx, ev.UserID, ev.Values[GameInputID], ev.Values[DurationInputID])
	if err != nil {
		return failure(ctx, "set", err)
	}
	return ephemeral(fmt.Sprintf("Availability set for **%s** until %s", e.Activity, availability.ShortTime(e.ExpiresAt)))
}

func (r *Router) submitGame(ctx context.Context, ev Event) *discordgo.InteractionResponse {
	e, err := r.svc.ChangeActivity(ctx, ev.UserID, ev.Values[NewGameInputID])
	if err != nil {
		return failure(ctx, "change_activity", err)
	}
	return ephemeral(fmt.Sprintf("Your game has been changed to **%s**.", e.Activity))
}

func (r *Router) submitTime(ctx context.Context, ev Event) *discordgo.InteractionResponse {
	e, err := r.svc.ChangeDuration(ctx, ev.UserID, ev.Values[NewDurationInputID])
	if err != nil {
		return failure(ctx, "change_duration", err)
	}
	return ephemeral(fmt.Sprintf("Your availability has been updated to %s.", availability.ShortTime(e.ExpiresAt)))
}

// failure picks the reply for a failed action. Expected rejections get
// their own message; everything else is logged and answered generically.
func failure(ctx context.Context, op string, err error) *discordgo.InteractionResponse {
	switch {
	case errors.Is(err, availability.ErrInvalidDuration):
		return ephemeral(replyInvalid)
	case errors.Is(err, availability.ErrInvalidActivity):
		return ephemeral(replyInvalidGame)
	case errors.Is(err, availability.ErrNoActiveEntry):
		return ephemeral(replyNotAvailable, availability.Control{ID: SetAvailabilityID, Label: "Set Availability"})
	}
	telemetry.LoggerWithCorr(ctx).Error("interaction failed", slog.String("op", op), slog.Any("err", err), slog.String("component", "discord"))
	return ephemeral(replyError)
}

func ephemeral(content string, controls ...availability.Control) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}
	if len(controls) > 0 {
		data.Components = controlRow(controls)
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

func textInput(id, label string, maxLength int) discordgo.TextInput {
	return discordgo.TextInput{
		CustomID:  id,
		Label:     label,
		Style:     discordgo.TextInputShort,
		Required:  true,
		MaxLength: maxLength,
	}
}

func modal(id, title string, inputs ...discordgo.TextInput) *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}})
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   id,
			Title:      title,
			Components: rows,
		},
	}
}
