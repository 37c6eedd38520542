package services

import "context"

type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

type SMS struct {
	To   string
	Body string
}

type SMSSender interface {
	Send(ctx context.Context, sms SMS) error
}
