package email

import (
	"bytes"
	"html/template"
)

var reminderTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2 style="margin-bottom: 8px;">{{.Title}}</h2>
  <p>{{.Message}}</p>
  {{if .URL}}<p><a href="{{.URL}}">Open in the app</a></p>{{end}}
  <p style="color: #888; font-size: 12px;">You receive this email because email reminders are enabled in your notification preferences.</p>
</body>
</html>
`))

// Reminder is the content of a reminder email.
type Reminder struct {
	Title   string
	Message string
	URL     string
}

// RenderReminder returns the subject and HTML body for r.
func RenderReminder(r Reminder) (subject string, body string, err error) {
	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, r); err != nil {
		return "", "", err
	}
	return r.Title, buf.String(), nil
}
