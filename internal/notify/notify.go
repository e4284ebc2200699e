// Package notify defines the outbound notification seam. The matching core
// only ever talks to the Notifier interface; delivery transport (SMTP or
// otherwise) is an external collaborator and lives outside this repository.
// Notifications are fired after a commit and are strictly best-effort: a
// failure is logged and counted, never rolled back into the match.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-peerfinder-backend/internal/domain"
)

// Notifier delivers match and waiting notices.
type Notifier interface {
	// SendMatchNotice tells recipient they have been matched, listing the
	// contact details of the other group members.
	SendMatchNotice(ctx context.Context, recipientEmail, recipientName string, members []domain.Record) error

	// SendWaitingNotice confirms a new join and hands out the record id used
	// to check status later.
	SendWaitingNotice(ctx context.Context, recipientEmail, recipientName, recordID, statusCheckURL string) error
}

// Nop is a Notifier that does nothing. Used in tests.
type Nop struct{}

func (Nop) SendMatchNotice(context.Context, string, string, []domain.Record) error {
	return nil
}

func (Nop) SendWaitingNotice(context.Context, string, string, string, string) error {
	return nil
}

// Log is a Notifier that renders the full notice and writes it to the
// structured log. It is the implementation that ships: wiring a real mail
// transport means implementing Notifier next to it, not touching the core.
type Log struct {
	Logger zerolog.Logger
}

// NewLog returns a logging notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{Logger: logger}
}

// SendMatchNotice implements Notifier.
func (l *Log) SendMatchNotice(ctx context.Context, recipientEmail, recipientName string, members []domain.Record) error {
	l.Logger.Info().
		Str("notice", "match").
		Str("recipient", recipientEmail).
		Int("group_size", len(members)).
		Msg(MatchNoticeBody(recipientEmail, recipientName, members))
	return nil
}

// SendWaitingNotice implements Notifier.
func (l *Log) SendWaitingNotice(ctx context.Context, recipientEmail, recipientName, recordID, statusCheckURL string) error {
	l.Logger.Info().
		Str("notice", "waiting").
		Str("recipient", recipientEmail).
		Str("record_id", recordID).
		Msg(WaitingNoticeBody(recipientName, recordID, statusCheckURL))
	return nil
}

// MatchNoticeBody renders the match notice text: a contact block per peer
// (the recipient and anonymized members are excluded), each with name, email,
// WhatsApp number and support type. An empty support type reads as
// "Accountability", the default the program promises.
func MatchNoticeBody(recipientEmail, recipientName string, members []domain.Record) string {
	var peers []string
	for _, m := range members {
		if m.Email == recipientEmail || m.Email == domain.Unpaired {
			continue
		}
		support := m.KindOfSupport
		if support == "" {
			support = "Accountability"
		}
		peers = append(peers, fmt.Sprintf(
			"Name: %s\nEmail Address: %s\nWhatsApp: %s\nSupport Type: %s",
			m.Name, m.Email, m.Phone, support,
		))
	}
	peerInfo := strings.Join(peers, "\n\n")
	if peerInfo == "" {
		peerInfo = "No other members found."
	}

	return fmt.Sprintf(`Hi %s,

You have been matched with the following peer(s):

%s

Kindly reach out to your peer(s) for collaboration and support!

Please show up for your partner or group, keep your details accurate, and let your partner or group know before unpairing. If you'd like to be paired with someone new, you'll need to register again.

Best regards,

Peer Finder Team`, recipientName, peerInfo)
}

// WaitingNoticeBody renders the waiting notice text with the record id and
// the status-check link.
func WaitingNoticeBody(recipientName, recordID, statusCheckURL string) string {
	return fmt.Sprintf(`Hi %s,

Waiting to Be Matched

Your request is in the queue. As soon as a suitable peer or group is available, you'll be matched.

Kindly copy your ID below to check your status later:

Your ID: %s

Check your status here: %s

Best regards,

Peer Finder Team`, recipientName, recordID, statusCheckURL)
}
