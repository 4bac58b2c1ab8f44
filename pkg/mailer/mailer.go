package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer delivers submission and outcome notifications over SMTP. Every send
// is best-effort from the pipeline's perspective: callers log failures and
// move on.
type Mailer struct {
	dialer    *gomail.Dialer
	from      string
	adBaseURL string
}

func New(host string, port int, username, password, from, adBaseURL string) *Mailer {
	return &Mailer{
		dialer:    gomail.NewDialer(host, port, username, password),
		from:      from,
		adBaseURL: adBaseURL,
	}
}

// NotifyReceived confirms that a submission entered review.
func (m *Mailer) NotifyReceived(to, adID string) error {
	body := fmt.Sprintf(
		"We received your vehicle ad (reference %s).\n\n"+
			"It is now under review. You will get another email once the review is complete.",
		adID,
	)
	return m.send(to, "Your vehicle ad was received", body)
}

// NotifyAccepted tells the submitter the ad is published, including where to
// find the listing.
func (m *Mailer) NotifyAccepted(to, adID string) error {
	body := fmt.Sprintf(
		"Good news! Your vehicle ad (reference %s) was accepted and is now published.\n\n"+
			"You can view your listing at %s/%s",
		adID, m.adBaseURL, adID,
	)
	return m.send(to, "Your vehicle ad was accepted", body)
}

// NotifyRejected tells the submitter the ad was rejected.
func (m *Mailer) NotifyRejected(to, adID string) error {
	body := fmt.Sprintf(
		"Unfortunately your vehicle ad (reference %s) was rejected.\n\n"+
			"Our review could not confirm the submitted image shows a vehicle. "+
			"You are welcome to submit a new ad with a different image.",
		adID,
	)
	return m.send(to, "Your vehicle ad was rejected", body)
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}
