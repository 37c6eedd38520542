package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"path"
	"time"
)

var resetEmailHTML = template.Must(template.New("reset").Parse(`<h2>Password Reset</h2>
<p>We received a request to reset the password for your account.</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>This link will expire in {{.Expiry}}.</p>
<p>If you did not request a password reset, you can ignore this email.</p>
`))

// Notifier delivers reset secrets over email and SMS.
type Notifier struct {
	mail      EmailSender
	sms       SMSSender
	baseURL   string
	emailTTL  time.Duration
	mobileTTL time.Duration
}

func NewNotifier(mail EmailSender, sms SMSSender, appBaseURL string, emailTTL, mobileTTL time.Duration) *Notifier {
	return &Notifier{
		mail:      mail,
		sms:       sms,
		baseURL:   appBaseURL,
		emailTTL:  emailTTL,
		mobileTTL: mobileTTL,
	}
}

// ResetLink builds <base>/reset-password?token=<token>.
func (n *Notifier) ResetLink(token string) (string, error) {
	u, err := url.Parse(n.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse app base url: %w", err)
	}
	u.Path = path.Join("/", u.Path, "reset-password")
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (n *Notifier) SendResetLink(ctx context.Context, email string, token string) error {
	link, err := n.ResetLink(token)
	if err != nil {
		return err
	}

	expiry := humanDuration(n.emailTTL)
	var html bytes.Buffer
	if err := resetEmailHTML.Execute(&html, struct{ Link, Expiry string }{link, expiry}); err != nil {
		return err
	}

	return n.mail.Send(ctx, Email{
		To:       []string{email},
		Subject:  "Reset your password",
		Body:     fmt.Sprintf("Use the link below to reset your password:\n\n%s\n\nThis link will expire in %s.\n", link, expiry),
		HTMLBody: html.String(),
	})
}

func (n *Notifier) SendResetOTP(ctx context.Context, mobile string, otp string) error {
	return n.sms.Send(ctx, SMS{
		To:   mobile,
		Body: fmt.Sprintf("Your password reset code is %s. It expires in %s. Never share this code.", otp, humanDuration(n.mobileTTL)),
	})
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
