package mail

import (
	"bytes"
	"html/template"
)

var htmlTemplates = template.Must(template.New("mail").Parse(`
{{define "verify"}}<h2>Verifica tu correo</h2>
{{if .Resend}}<p>Hola {{.Name}}, este es tu nuevo enlace (48 h):</p>
{{else}}<p>Hola {{.Name}}, gracias por registrarte en Canal Energético.</p>
<p>Haz clic para verificar tu cuenta (48 horas):</p>
{{end}}<p><a href="{{.URL}}">{{.URL}}</a></p>{{end}}
{{define "reset"}}<h2>Restablecer contraseña</h2>
<p>Hola {{.Name}}, haz clic para restablecer tu contraseña (2 h):</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>{{end}}
{{define "suggestion"}}<h2>Nueva sugerencia de normativa</h2>
<p><strong>Nombre:</strong> {{.Name}}</p>
<p><strong>Enlace:</strong> <a href="{{.URL}}">{{.URL}}</a></p>
{{if .Comment}}<p><strong>Comentario:</strong> {{.Comment}}</p>{{end}}{{end}}
`))

type templateData struct {
	Name    string
	URL     string
	Comment string
	Resend  bool
}

func render(name string, data templateData) string {
	var buf bytes.Buffer
	// Templates are static and data is plain strings; execution cannot fail.
	_ = htmlTemplates.ExecuteTemplate(&buf, name, data)
	return buf.String()
}

// VerificationEmail asks the user to confirm their address.
func VerificationEmail(to, name, link string, resend bool) Message {
	subject := "Verifica tu correo – Canal Energético"
	if resend {
		subject = "Reenviar verificación – Canal Energético"
	}
	return Message{
		Kind:    KindVerification,
		To:      to,
		Subject: subject,
		HTML:    render("verify", templateData{Name: name, URL: link, Resend: resend}),
		Text:    "Hola " + name + ", verifica tu cuenta en: " + link,
	}
}

// ResetEmail carries a password reset link.
func ResetEmail(to, name, link string) Message {
	return Message{
		Kind:    KindReset,
		To:      to,
		Subject: "Restablecer contraseña – Canal Energético",
		HTML:    render("reset", templateData{Name: name, URL: link}),
		Text:    "Hola " + name + ", restablece tu contraseña en: " + link,
	}
}

// TestEmail checks the delivery path end to end.
func TestEmail(to string) Message {
	return Message{
		Kind:    KindTest,
		To:      to,
		Subject: "Prueba Blog Energético",
		HTML:    "<h1>Funciona!</h1><p>Este es un test de SMTP.</p>",
		Text:    "Funciona! Este es un test de SMTP.",
	}
}

// SuggestionEmail notifies the editors of a reader-suggested regulation.
func SuggestionEmail(to, name, link, comment string) Message {
	return Message{
		Kind:    KindSuggestion,
		To:      to,
		Subject: "Sugerencia de normativa – Canal Energético",
		HTML:    render("suggestion", templateData{Name: name, URL: link, Comment: comment}),
		Text:    "Sugerencia: " + name + " " + link + "\n" + comment,
	}
}
