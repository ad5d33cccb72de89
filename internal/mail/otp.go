package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/rotisserie/eris"
)

// OTPSubject is the subject line of verification emails.
const OTPSubject = "Your Verification Code"

var otpTemplate = template.Must(template.New("otp").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1 style="color: #2c3e50;">Verify your subscription</h1>
  <p>Your verification code is:</p>
  <p style="font-size: 2em; letter-spacing: 0.2em; font-weight: bold;">{{.Code}}</p>
  {{if .TTL}}<p style="color: #7f8c8d;">The code expires in {{.TTL}}.</p>{{end}}
</body>
</html>`))

// OTPMessage builds the verification email carrying code. ttl is shown when
// positive.
func OTPMessage(to, code string, ttl time.Duration) (Message, error) {
	data := struct {
		Code string
		TTL  string
	}{Code: code}
	if ttl > 0 {
		data.TTL = humanDuration(ttl)
	}

	var buf bytes.Buffer
	if err := otpTemplate.Execute(&buf, data); err != nil {
		return Message{}, eris.Wrap(err, "mail: render otp")
	}

	text := "Your verification code is " + code + "."
	if data.TTL != "" {
		text += " It expires in " + data.TTL + "."
	}
	return Message{To: to, Subject: OTPSubject, HTML: buf.String(), Text: text}, nil
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
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
