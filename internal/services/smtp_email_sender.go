package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"gopkg.in/gomail.v2"
)

type SMTPSender struct {
	send func(...*gomail.Message) error
	from string

	inflight sync.WaitGroup
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		send: gomail.NewDialer(host, port, username, password).DialAndSend,
		from: from,
	}
}

// Send dials and sends in the background so ctx can bound the wait;
// gomail itself has no context support. A send abandoned on ctx keeps
// running until the server answers and is tracked by Wait.
func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return errors.New("no recipients specified")
	}

	msg := newMessage(s.from, email)
	done := make(chan error, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		done <- s.send(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every SMTP conversation started by Send has ended,
// including ones whose caller already gave up, or until ctx is done.
func (s *SMTPSender) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newMessage(from string, email Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)

	switch {
	case email.HTMLBody != "" && email.Body != "":
		msg.SetBody("text/plain", email.Body)
		msg.AddAlternative("text/html", email.HTMLBody)
	case email.HTMLBody != "":
		msg.SetBody("text/html", email.HTMLBody)
	default:
		msg.SetBody("text/plain", email.Body)
	}
	return msg
}

// writeMessage renders the RFC 5322 form of email.
func writeMessage(w io.Writer, from string, email Email) error {
	_, err := newMessage(from, email).WriteTo(w)
	return err
}
