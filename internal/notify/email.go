package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// EmailSender delivers notices as HTML email over SMTP.
type EmailSender struct {
	config EmailConfig
	server string
	auth   smtp.Auth
}

func NewEmailSender(config EmailConfig) *EmailSender {
	return &EmailSender{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
	}
}

// IsConfigured returns true if email delivery is configured.
func (s *EmailSender) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *EmailSender) Send(ctx context.Context, notice Notice) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	subject := "Document shared with you"
	if title := notice.Payload["title"]; title != "" {
		subject = title
	}

	html, err := renderTemplate(accessGrantedTemplate, map[string]string{
		"Title":     notice.Payload["title"],
		"UpdatedBy": notice.Payload["updatedBy"],
		"RoomID":    notice.Payload["roomId"],
		"Scope":     notice.Payload["scope"],
	})
	if err != nil {
		return fmt.Errorf("render grant template: %w", err)
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", notice.Recipient)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", html)

	return smtp.SendMail(s.server, s.auth, s.config.From, []string{notice.Recipient}, msg.Bytes())
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("notice").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const accessGrantedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Document access granted</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #7c3aed; padding-bottom: 10px; margin-bottom: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>RoomSync</h1>
    </div>

    <p>{{.Title}}</p>

    <p>Granted by: {{.UpdatedBy}}</p>
    <p>Access scope: {{.Scope}}</p>
    <p>Document: {{.RoomID}}</p>

    <div class="footer">
        <p>If you were not expecting this, you can safely ignore this email.</p>
    </div>
</body>
</html>`
