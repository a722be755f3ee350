package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const layout = `<!DOCTYPE html>
<html><body style="font-family:sans-serif;background:#0f0f10;color:#eaeaea;padding:24px">
<div style="max-width:480px;margin:0 auto">
{{template "content" .}}
<p style="margin-top:32px"><a href="{{.Link}}" style="background:#e50914;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none">{{template "cta" .}}</a></p>
</div>
</body></html>`

var contentTemplates = map[EventType]string{
	EventFriendRequest: `{{define "content"}}<h2>New friend request</h2>
<p><strong>{{.ActorName}}</strong> wants to be your friend on Trackd.</p>{{end}}
{{define "cta"}}Review request{{end}}`,

	EventFriendAccepted: `{{define "content"}}<h2>Friend request accepted</h2>
<p><strong>{{.ActorName}}</strong> accepted your friend request. You can now send each other suggestions.</p>{{end}}
{{define "cta"}}See your friends{{end}}`,

	EventInvitation: `{{define "content"}}<h2>You're invited</h2>
<p><strong>{{.ActorName}}</strong> invited you to join Trackd to share what you're watching.</p>{{end}}
{{define "cta"}}Join Trackd{{end}}`,

	EventSuggestion: `{{define "content"}}<h2>{{.ActorName}} suggested something</h2>
{{if .Poster}}<img src="{{.Poster}}" alt="{{.Title}}" width="160" style="border-radius:6px">{{end}}
<p><strong>{{.Title}}</strong>{{if eq .MediaType "tv"}} (TV){{end}}</p>{{end}}
{{define "cta"}}Open suggestions{{end}}`,
}

var subjects = map[EventType]string{
	EventFriendRequest:  "%s sent you a friend request",
	EventFriendAccepted: "%s accepted your friend request",
	EventInvitation:     "%s invited you to Trackd",
	EventSuggestion:     "%s suggested something to watch",
}

var templates = mustParseTemplates()

func mustParseTemplates() map[EventType]*template.Template {
	out := make(map[EventType]*template.Template, len(contentTemplates))
	for t, content := range contentTemplates {
		tmpl := template.Must(template.New(string(t)).Parse(layout))
		out[t] = template.Must(tmpl.Parse(content))
	}
	return out
}

// Render 渲染事件对应的邮件主题和 HTML 正文。
func Render(e Event) (subject string, html string, err error) {
	tmpl, ok := templates[e.Type]
	if !ok {
		return "", "", fmt.Errorf("unknown notification type %q", e.Type)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, e); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", e.Type, err)
	}
	return fmt.Sprintf(subjects[e.Type], e.ActorName), buf.String(), nil
}
