package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email delivers alerts through SendGrid.
type Email struct {
	From   string
	To     string
	APIKey string
}

func NewEmail(from, to, apiKey string) *Email {
	if from == "" || to == "" {
		return nil
	}
	return &Email{From: from, To: to, APIKey: apiKey}
}

func (e *Email) Send(ctx context.Context, title, text string) error {
	if e == nil || e.APIKey == "" {
		return errors.New("email disabled")
	}
	from := mail.NewEmail("servicewatch", e.From)
	to := mail.NewEmail("", e.To)
	msg := mail.NewSingleEmail(from, title, to, text, text)

	client := sendgrid.NewSendClient(e.APIKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sendgrid status %d", resp.StatusCode)
	}
	return nil
}
