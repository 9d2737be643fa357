package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/endervision20/availability-bot/availability"
	"github.com/endervision20/availability-bot/panel"
)

// messageAPI is the subset of *discordgo.Session the publisher needs.
type messageAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Publisher draws panels as embeds with a button row.
type Publisher struct {
	api messageAPI
	now func() time.Time
}

// NewPublisher returns a panel.Publisher backed by api (normally a *discordgo.Session).
func NewPublisher(api messageAPI) *Publisher {
	return &Publisher{api: api, now: time.Now}
}

// CreatePanel posts p in channelID and returns the new message ID.
func (p *Publisher) CreatePanel(ctx context.Context, channelID string, pn availability.Panel) (string, error) {
	msg, err := p.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{panelEmbed(pn, time.Time{})},
		Components: controlRow(pn.Controls),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapRESTError(err)
	}
	return msg.ID, nil
}

// UpdatePanel edits the message at ref in place.
func (p *Publisher) UpdatePanel(ctx context.Context, ref availability.PanelRef, pn availability.Panel) error {
	embeds := []*discordgo.MessageEmbed{panelEmbed(pn, p.now())}
	components := controlRow(pn.Controls)
	_, err := p.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return mapRESTError(err)
	}
	return nil
}

// statusError carries the HTTP status of a REST failure.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.status }

var _ panel.HTTPStatusError = (*statusError)(nil)

// mapRESTError translates discordgo REST failures: unknown channel/message
// become panel.ErrPanelNotFound, anything else with a response keeps its
// HTTP status for classification.
func mapRESTError(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %s", panel.ErrPanelNotFound, rest.Message.Message)
		}
	}
	if rest.Response != nil {
		return &statusError{status: rest.Response.StatusCode, err: err}
	}
	return err
}
