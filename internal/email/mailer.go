package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// ErrUnknownTemplate is returned for a template name with no registered template.
var ErrUnknownTemplate = errors.New("unknown email template")

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]messageTemplate{
	"invitation_received": mustTemplate("invitation_received",
		`You have been invited to view "{{.listing_title}}"`,
		`Hi {{.invitee_name}},

The owner of "{{.listing_title}}" invited you after reviewing your application.
{{- with .message}}

Their message:
{{.}}
{{- end}}

Please respond before {{.expires_at}}. Pending invitations expire automatically.
`),
	"application_status": mustTemplate("application_status",
		`Your application for "{{.listing_title}}" was {{.status}}`,
		`Hi {{.applicant_name}},

Your application for "{{.listing_title}}" was {{.status}} by the owner.
`),
}

func mustTemplate(name, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(name + ":subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(name + ":body").Option("missingkey=zero").Parse(body)),
	}
}

// Mailer renders named templates and hands the result to a Sender.
type Mailer struct {
	sender Sender
	from   string
	now    func() time.Time
}

func NewMailer(sender Sender, from string) *Mailer {
	if from == "" {
		from = "no-reply@billboard.local"
	}
	return &Mailer{sender: sender, from: from, now: time.Now}
}

// Render returns the subject and plain-text body of a template.
func Render(name string, data map[string]any) (string, string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var subject, body strings.Builder
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

// Deliver renders the template and sends it to a single recipient.
func (m *Mailer) Deliver(ctx context.Context, to, name string, data map[string]any) error {
	subject, body, err := Render(name, data)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "From: %s\r\n", m.from)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", m.now().UTC().Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return m.sender.Send(ctx, []string{to}, subject, []byte(sb.String()))
}
