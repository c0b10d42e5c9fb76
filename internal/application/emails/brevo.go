package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoContact   `json:"sender"`
	To          []BrevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	ReplyTo     *BrevoContact  `json:"replyTo,omitempty"`
}

type BrevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Invitation is the data rendered into an invitation email.
type Invitation struct {
	ToEmail     string
	FromEmail   string
	CompanyName string
	Role        string
	Message     string
	Link        string
	// Reminder marks a re-sent invitation.
	Reminder bool
}

// Sender sends transactional emails.
type Sender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// BrevoClient sends emails via the Brevo API. An empty APIKey disables sending.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Endpoint string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@workspace.app"
}

func (c *BrevoClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return brevoAPI
}

// send sends one email via Brevo API.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string, replyTo *BrevoContact) error {
	body := BrevoSendRequest{
		Sender:      BrevoContact{Email: c.from(), Name: "Workspace"},
		To:          []BrevoContact{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     replyTo,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendInvitation sends the invitation (or reminder) email.
func (c *BrevoClient) SendInvitation(ctx context.Context, inv Invitation) error {
	if c.APIKey == "" {
		return nil
	}
	subject := fmt.Sprintf("You have been invited to join %s", inv.CompanyName)
	if inv.Reminder {
		subject = fmt.Sprintf("Reminder: Invitation to join %s", inv.CompanyName)
	}
	var replyTo *BrevoContact
	if inv.FromEmail != "" {
		replyTo = &BrevoContact{Email: inv.FromEmail}
	}
	return c.send(ctx, inv.ToEmail, subject, EmailLayout(invitationContent(inv)), replyTo)
}

func invitationContent(inv Invitation) string {
	note := ""
	if inv.Message != "" {
		note = fmt.Sprintf(`<p style="border-left:3px solid #E5E7EB;padding-left:12px;color:#4B5563;">%s</p>`, EscapeHTML(inv.Message))
	}
	return fmt.Sprintf(`
    <h1>Join %s</h1>
    <p><strong>%s</strong> invited you to join <strong>%s</strong> as <strong>%s</strong>.</p>
    %s
    <center>
      <a href="%s" class="ws-button">View Invitation</a>
    </center>
    <p style="margin-top:20px;font-size:14px;color:#666;">
      If you were not expecting this invitation, you can safely ignore this email.
    </p>
`, EscapeHTML(inv.CompanyName), EscapeHTML(inv.FromEmail), EscapeHTML(inv.CompanyName), EscapeHTML(inv.Role), note, inv.Link)
}
