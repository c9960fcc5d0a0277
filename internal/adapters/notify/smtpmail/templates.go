package smtpmail

import "html/template"

const layout = `{{define "layout"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="margin: 0;">🐾 PetSched</h1>
    <p style="margin: 10px 0 0 0;">{{.Banner}}</p>
  </div>
  <div style="background: white; padding: 30px; border-radius: 0 0 10px 10px;">
    <h2 style="color: #333; margin-bottom: 20px;">Hello {{.Name}}!</h2>
    {{template "content" .}}
    <div style="text-align: center; margin-top: 30px;">
      <a href="{{.FrontendURL}}" style="background: #667eea; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">{{.CTA}}</a>
    </div>
    <div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #e1e5e9; color: #666; font-size: 14px;">
      {{template "footer" .}}
      <p>Thank you for choosing PetSched!</p>
    </div>
  </div>
</div>{{end}}`

const appointmentDetails = `{{define "details"}}<div style="background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
  <h3 style="color: #333; margin-bottom: 15px;">📅 Appointment Details</h3>
  <p><strong>Pet:</strong> {{.PetName}}{{with .PetSpecies}} ({{.}}){{end}}</p>
  <p><strong>Date:</strong> {{.Date}}</p>
  <p><strong>Time:</strong> {{.Time}}</p>
  <p><strong>Type:</strong> {{.ServiceType}}</p>
  {{if .ShowNotes}}<p><strong>Notes:</strong> {{with .Notes}}{{.}}{{else}}No additional notes{{end}}</p>{{end}}
</div>
<p style="color: #666; line-height: 1.6;">Please arrive 10 minutes before your scheduled appointment time.</p>{{end}}
{{define "rescheduleFooter"}}<p>If you need to reschedule or cancel, please contact us at least 24 hours in advance.</p>{{end}}`

const welcomeTmpl = `{{define "content"}}<p style="color: #666; line-height: 1.6;">Welcome to PetSched! We're excited to help you manage your pet's healthcare appointments.</p>
<div style="background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
  <h3 style="color: #333; margin-bottom: 15px;">🚀 Getting Started</h3>
  <ul style="color: #666; line-height: 1.6;">
    <li>Add your pets to your profile</li>
    <li>Schedule appointments with ease</li>
    <li>Receive reminders and confirmations</li>
    <li>Track your pet's health history</li>
  </ul>
</div>{{end}}
{{define "footer"}}<p>If you have any questions, feel free to reach out to our support team.</p>{{end}}`

const confirmationTmpl = `{{define "content"}}<p style="color: #666; line-height: 1.6;">Your appointment has been confirmed for <strong>{{.PetName}}</strong>.</p>
{{template "details" .}}{{end}}
{{define "footer"}}{{template "rescheduleFooter" .}}{{end}}`

const reminderTmpl = `{{define "content"}}<p style="color: #666; line-height: 1.6;">This is a friendly reminder about your upcoming appointment for <strong>{{.PetName}}</strong>.</p>
{{template "details" .}}{{end}}
{{define "footer"}}{{template "rescheduleFooter" .}}{{end}}`

// Cada email es el layout común más su bloque "content" y "footer".
var templates = map[string]*template.Template{
	templateWelcome:      template.Must(template.Must(template.New("welcome").Parse(layout)).Parse(welcomeTmpl)),
	templateConfirmation: template.Must(template.Must(template.Must(template.New("confirmation").Parse(layout)).Parse(appointmentDetails)).Parse(confirmationTmpl)),
	templateReminder:     template.Must(template.Must(template.Must(template.New("reminder").Parse(layout)).Parse(appointmentDetails)).Parse(reminderTmpl)),
}

type emailData struct {
	Banner      string
	Name        string
	CTA         string
	FrontendURL string

	PetName     string
	PetSpecies  string
	Date        string
	Time        string
	ServiceType string
	Notes       string
	ShowNotes   bool
}
