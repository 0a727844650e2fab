package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"eventpress/internal/dto"
)

const inviteDuration = 2 * time.Hour

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>You're registered for {{.EventName}}</h2>
  <p>Hi {{.FullName}},</p>
  <p>Thanks for registering. Your spot is confirmed.</p>
  {{- if .StartDate}}
  <p><strong>When:</strong> {{.StartDate.Format "Monday, January 2, 2006 15:04 MST"}}</p>
  {{- end}}
  {{- if .Venue}}
  <p><strong>Where:</strong> {{.Venue}}</p>
  {{- end}}
  {{- if .TicketType}}
  <p><strong>Ticket:</strong> {{.TicketType}}</p>
  {{- end}}
  <p>Show this QR code at the entrance:</p>
  <p><img src="{{.QRCodeURL}}" alt="Ticket QR code" width="200" height="200"></p>
  <p style="font-family: monospace; font-size: 12px;">{{.TicketToken}}</p>
</body>
</html>
`))

var announcementTmpl = template.Must(template.New("announcement").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{.Subject}}</h2>
  {{- if .Name}}
  <p>Hi {{.Name}},</p>
  {{- end}}
  <p style="white-space: pre-line;">{{.Message}}</p>
  <p style="color: #888; font-size: 12px;">You received this because you registered for {{.EventName}}.</p>
</body>
</html>
`))

func renderConfirmation(msg dto.ConfirmationMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderAnnouncement(msg dto.AnnouncementMessage, rcpt dto.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	err := announcementTmpl.Execute(&buf, struct {
		Subject, Message, EventName, Name string
	}{msg.Subject, msg.Message, msg.EventName, rcpt.Name})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// calendarInvite renders an RFC 5545 REQUEST lasting two hours from the event start.
func calendarInvite(msg dto.ConfirmationMessage, organizer string, stamp time.Time) []byte {
	const layout = "20060102T150405Z"
	start := msg.StartDate.UTC()

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//EventPress//Registration//EN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + msg.RegistrationID + "@eventpress",
		"DTSTAMP:" + stamp.UTC().Format(layout),
		"DTSTART:" + start.Format(layout),
		"DTEND:" + start.Add(inviteDuration).Format(layout),
		"SUMMARY:" + icsEscape(msg.EventName),
	}
	if msg.Venue != "" {
		lines = append(lines, "LOCATION:"+icsEscape(msg.Venue))
	}
	if organizer != "" {
		lines = append(lines, "ORGANIZER:mailto:"+organizer)
	}
	lines = append(lines,
		"DESCRIPTION:"+icsEscape(fmt.Sprintf("Your ticket: %s", msg.TicketToken)),
		"END:VEVENT",
		"END:VCALENDAR",
	)
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

var icsReplacer = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func icsEscape(s string) string {
	return icsReplacer.Replace(s)
}
