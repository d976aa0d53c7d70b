package exam

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

// Event is the way an exam was closed.
type Event string

const (
	EventCancelled    Event = "cancelled"
	EventFinished     Event = "finished"
	EventAutoFinished Event = "auto_finished"
)

// Notifier is told whenever an exam reaches a terminal state.
type Notifier interface {
	ExamClosed(ctx context.Context, e Exam, ev Event) error
}

type nopNotifier struct{}

func (nopNotifier) ExamClosed(context.Context, Exam, Event) error { return nil }

// MailNotifier emails the creator of the exam. The email service prefixes the subject with the app name.
type MailNotifier struct {
	mailSvc core.EmailService
}

var _ Notifier = (*MailNotifier)(nil)

func NewMailNotifier(mailSvc core.EmailService) *MailNotifier {
	return &MailNotifier{mailSvc: mailSvc}
}

func (n *MailNotifier) ExamClosed(_ context.Context, e Exam, ev Event) error {
	if e.CreatorEmail == "" {
		return nil
	}
	to, err := mail.ParseAddress(e.CreatorEmail)
	if err != nil {
		return err
	}

	var subject, body strings.Builder
	switch ev {
	case EventCancelled:
		fmt.Fprintf(&subject, "Exam %q cancelled", e.Title)
		fmt.Fprintf(&body, "Your exam %q has been cancelled.\n", e.Title)
	case EventAutoFinished:
		fmt.Fprintf(&subject, "Exam %q finished", e.Title)
		fmt.Fprintf(&body, "Your exam %q reached its end time (%s) and has been closed.\n",
			e.Title, e.EndTime.Format(time.RFC1123))
		body.WriteString("Every attempt still in progress has been submitted.\n")
	default:
		fmt.Fprintf(&subject, "Exam %q finished", e.Title)
		fmt.Fprintf(&body, "Your exam %q has been finished.\n", e.Title)
		body.WriteString("Every attempt still in progress has been submitted.\n")
	}

	n.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{*to},
		Subject: subject.String(),
		Body:    body.String(),
	})
	return nil
}
