package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/opaline-simulator/internal/obs"
	"github.com/noah-isme/opaline-simulator/internal/submission"
)

// DefaultSubject is the subject line of the confirmation email.
const DefaultSubject = "Opaline - Votre simulation et prochaines étapes"

// DefaultTimeout bounds a delivery when Sender.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Result reports whether the confirmation email was handed to the transport.
// ErrorDetail is for logs only.
type Result struct {
	Delivered   bool   `json:"delivered"`
	ErrorDetail string `json:"-"`
}

// Sender renders and delivers the confirmation email for a submission.
type Sender struct {
	Transport Transport
	Template  *template.Template
	From      string
	Subject   string
	Timeout   time.Duration
	// Name labels metrics with the transport kind.
	Name string
}

// Send delivers one email to the submission's contact address. It never
// returns an error and never panics; every failure is reported in Result.
func (s *Sender) Send(ctx context.Context, sub *submission.Submission) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Delivered: false, ErrorDetail: fmt.Sprintf("transport panic: %v", r)}
		}
		s.record(res)
		if !res.Delivered {
			zerolog.Ctx(ctx).Warn().Str("detail", res.ErrorDetail).Msg("notification_failed")
		}
	}()

	if s == nil || s.Transport == nil {
		return Result{ErrorDetail: "transport not configured"}
	}
	if sub == nil {
		return Result{ErrorDetail: "submission is nil"}
	}
	tpl := s.Template
	if tpl == nil {
		tpl = DefaultTemplate()
	}
	p := sub.Pricing()
	body, err := render(tpl, TemplateData{
		Name:      sub.ContactName(),
		Surname:   sub.ContactSurname(),
		Email:     sub.ContactEmail(),
		Revenue:   p.Revenue.String(),
		TotalCost: p.TotalCost.String(),
		NetProfit: p.NetProfit.String(),
	})
	if err != nil {
		return Result{ErrorDetail: "render: " + err.Error()}
	}
	subject := s.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = s.Transport.Send(ctx, Message{
		From:    s.From,
		To:      sub.ContactEmail(),
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{ErrorDetail: "timeout: " + err.Error()}
		}
		return Result{ErrorDetail: err.Error()}
	}
	return Result{Delivered: true}
}

func (s *Sender) record(res Result) {
	if obs.NotificationDeliveriesTotal == nil {
		return
	}
	name := "unknown"
	if s != nil && s.Name != "" {
		name = s.Name
	}
	result := "delivered"
	if !res.Delivered {
		result = "failed"
	}
	obs.NotificationDeliveriesTotal.WithLabelValues(name, result).Inc()
}
