// Package outreach routes a generated message to the right delivery channel:
// email via Smartlead (with a direct SMTP fallback) or LinkedIn DM via
// Unipile.
package outreach

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/pkg/smartlead"
	"github.com/apexswarm/leadgen/pkg/unipile"
)

// Channel names recorded on the lead after a successful dispatch.
const (
	ChannelEmail      = "email"
	ChannelEmailSMTP  = "email_smtp"
	ChannelLinkedInDM = "linkedin_dm"
)

// ErrNoChannel is returned when a lead has neither an email address nor a
// LinkedIn profile to message.
var ErrNoChannel = eris.New("no outreach channel available")

// Message is the personalized copy to deliver.
type Message struct {
	Subject string
	Body    string
}

// Result reports where the message went.
type Result struct {
	Channel    string
	DispatchID string
}

// MailSender delivers email directly over SMTP. Used as a fallback when the
// campaign API rejects a lead.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// Dispatcher picks and drives the delivery channel for a lead.
type Dispatcher struct {
	email  smartlead.Client
	smtp   MailSender
	dm     unipile.Client
	log    *zap.Logger
}

// New creates a Dispatcher. Any client may be nil, disabling that channel.
func New(email smartlead.Client, smtp MailSender, dm unipile.Client, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.L()
	}
	return &Dispatcher{email: email, smtp: smtp, dm: dm, log: log}
}

// Dispatch sends the message over the best available channel. Email wins when
// the lead has an address; a Smartlead failure falls back to direct SMTP
// before the email channel is considered failed. Leads with only a LinkedIn
// URL go out as DMs.
func (d *Dispatcher) Dispatch(ctx context.Context, lead *model.Lead, msg Message) (*Result, error) {
	if lead.Enrichment.Email != "" && d.email != nil {
		res, err := d.email.SendEmail(ctx, smartlead.SendRequest{
			Email:   lead.Enrichment.Email,
			Handle:  lead.Handle,
			Subject: msg.Subject,
			Body:    msg.Body,
		})
		if err == nil {
			return &Result{Channel: ChannelEmail, DispatchID: res.LeadID}, nil
		}

		if d.smtp == nil {
			return nil, eris.Wrap(err, "outreach: email dispatch")
		}
		d.log.Warn("campaign dispatch failed, falling back to SMTP",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		msgID, smtpErr := d.smtp.Send(ctx, lead.Enrichment.Email, msg.Subject, msg.Body)
		if smtpErr != nil {
			return nil, eris.Wrap(smtpErr, "outreach: smtp fallback")
		}
		return &Result{Channel: ChannelEmailSMTP, DispatchID: msgID}, nil
	}

	if lead.Enrichment.LinkedInURL != "" && d.dm != nil {
		res, err := d.dm.SendDM(ctx, unipile.DMRequest{
			ProfileURL: lead.Enrichment.LinkedInURL,
			Text:       msg.Body,
		})
		if err != nil {
			return nil, eris.Wrap(err, "outreach: dm dispatch")
		}
		return &Result{Channel: ChannelLinkedInDM, DispatchID: res.ChatID}, nil
	}

	return nil, ErrNoChannel
}
