package discord

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/endervision20/availability-bot/panel"
	"github.com/endervision20/availability-bot/telemetry"
)

// NewSession creates a gateway session for a bot token. It does not connect.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return s, nil
}

type commandRegistrar interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Bot connects the router and the reconciler to the gateway.
type Bot struct {
	session *discordgo.Session
	router  *Router
	rec     *panel.Reconciler
	guildID string
	ctx     context.Context
}

// NewBot wires svc to session. guildID scopes command registration; when it
// is empty the guild of the stored panel reference is used.
func NewBot(session *discordgo.Session, svc *panel.Service, guildID string) *Bot {
	return &Bot{
		session: session,
		router:  NewRouter(svc),
		rec:     svc.Reconciler(),
		guildID: guildID,
		ctx:     context.Background(),
	}
}

// Open registers the handlers and connects. ctx bounds the work started
// by handlers.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	logger := slog.Default().With(slog.String("component", "discord"))
	logger.Info("logged in", slog.String("user", r.User.Username), slog.String("user_id", r.User.ID))

	b.registerCommands(s, r.User.ID)

	if b.rec.State() == panel.Active {
		ctx := telemetry.WithCorrelation(b.ctx, uuid.NewString())
		if err := b.rec.Do(ctx, b.rec.Reconcile); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("initial reconcile failed", slog.Any("err", err), slog.String("component", "discord"))
		}
	}
}

// commandGuild is the guild commands are registered in.
func (b *Bot) commandGuild() string {
	return cmp.Or(b.guildID, b.rec.Ref().GuildID)
}

func (b *Bot) registerCommands(api commandRegistrar, appID string) {
	logger := slog.Default().With(slog.String("component", "discord"))
	guildID := b.commandGuild()
	if guildID == "" {
		logger.Warn("no guild known (GUILD_ID unset and no panel set up); skipping command registration")
		return
	}
	cmd := &discordgo.ApplicationCommand{Name: SetupCommand, Description: "Creates the availability panel"}
	if _, err := api.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
		logger.Error("failed to register commands", slog.Any("err", err), slog.String("guild_id", guildID))
		return
	}
	logger.Info("commands registered", slog.String("guild_id", guildID))
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	b.handleInteraction(b.ctx, s, ic.Interaction)
}

// handleInteraction answers one interaction. Panics in the router are
// recovered and answered with the generic error reply.
func (b *Bot) handleInteraction(ctx context.Context, rs responder, i *discordgo.Interaction) {
	ev, ok := eventFrom(i)
	if !ok {
		return
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerDiscord, "discord.interaction",
		attribute.String("kind", ev.Kind.String()),
		attribute.String("name", ev.Name),
		telemetry.UserAttr(ev.UserID))
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "discord"))
	telemetry.CountInteraction(ev.Kind.String())

	var resp *discordgo.InteractionResponse
	func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("interaction handler panic", slog.Any("panic", p), slog.String("name", ev.Name))
				resp = ephemeral(replyError)
			}
		}()
		resp = b.router.Handle(ctx, ev)
	}()
	if resp == nil {
		logger.Debug("ignoring interaction", slog.String("kind", ev.Kind.String()), slog.String("name", ev.Name))
		telemetry.EndSpan(span, nil)
		return
	}

	err := rs.InteractionRespond(i, resp, discordgo.WithContext(ctx))
	if err != nil {
		logger.Error("failed to respond to interaction", slog.Any("err", err), slog.String("name", ev.Name))
	}
	telemetry.EndSpan(span, err)
}
