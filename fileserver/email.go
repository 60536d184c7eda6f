package fileserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"

	"github.com/Carbon-X-DAO/TeeCustomizer/exportlog"
	"github.com/Carbon-X-DAO/TeeCustomizer/session"
	"github.com/mailgun/mailgun-go/v4"
)

var errMailDisabled = errors.New("e-mail delivery is not configured")

var body string = `
<html>
<body>
<h1>Your custom T-shirt</h1>

	Your design is attached as custom_tshirt.png.
</body>
</html>
`

type Mailer interface {
	SendDesign(ctx context.Context, to string, png []byte) error
}

type mailgunMailer struct {
	mg     mailgun.Mailgun
	sender string
}

func NewMailgun(domain, apiKey, sender string) Mailer {
	return &mailgunMailer{
		mg:     mailgun.NewMailgun(domain, apiKey),
		sender: sender,
	}
}

func (m *mailgunMailer) SendDesign(ctx context.Context, to string, png []byte) error {
	subject := `Your custom T-shirt design`
	msg := m.mg.NewMessage(m.sender, subject, "", to)
	msg.SetHtml(body)
	msg.AddReaderAttachment(exportFilename, io.NopCloser(bytes.NewReader(png)))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, _, err := m.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send message to recipient: %w", err)
	}

	return nil
}

type emailForm struct {
	Email string `form:"email"`
}

func (server *Server) handleEmail(ctx context.Context, s *session.Session, w http.ResponseWriter, r *http.Request) {
	if server.mailer == nil {
		server.writeAPIErr(w, errMailDisabled)
		return
	}

	var ef emailForm
	if _, err := decodeForm(w, r, &ef); err != nil {
		server.writeAPIErr(w, err)
		return
	}

	addr, err := mail.ParseAddress(ef.Email)
	if err != nil {
		server.writeAPIErr(w, fmt.Errorf("%w: e-mail address %q: %s", errBadRequest, ef.Email, err))
		return
	}

	png, canvas, err := server.render(ctx, s, exportSettleTimeout)
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	if err := server.mailer.SendDesign(ctx, addr.Address, png); err != nil {
		server.writeAPIErr(w, err)
		return
	}

	server.recordExport(ctx, exportlog.NewEntry(s.ID, exportlog.ViaEmail, png, canvas.Width, canvas.Height))
	server.logger.Info("design e-mailed", "session", s.ID, "bytes", len(png))
	w.WriteHeader(http.StatusAccepted)
}
