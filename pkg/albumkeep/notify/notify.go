// Package notify provides outbound notification senders and the email
// content used by the confirmation and rejection workers.
package notify

import (
	"context"
	"fmt"
	"sync"
)

// Email content for the two notification paths. The confirmation body
// references the ingested file name; the rejection body is fixed.
const (
	ConfirmationSubject = "New Image Added Notification"
	RejectionSubject    = "File Upload Rejection Notification"
	RejectionBody       = "Your recent file upload was rejected due to unsupported file type."
)

// ConfirmationBody returns the HTML confirmation body for fileName.
func ConfirmationBody(fileName string) string {
	return fmt.Sprintf("<p>A new image with fileName <strong>%s</strong> has been added to the album.</p>", fileName)
}

// SentEmail is one email captured by a Recorder.
type SentEmail struct {
	Recipient string
	Subject   string
	Body      string
}

// Recorder is an in-memory sender that captures sent emails, used by
// tests. Setting Fail makes every send return that error.
type Recorder struct {
	mu   sync.Mutex
	sent []SentEmail

	Fail error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the email, or returns Fail when set.
func (r *Recorder) Send(ctx context.Context, recipient, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.sent = append(r.sent, SentEmail{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of all recorded emails.
func (r *Recorder) Sent() []SentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentEmail(nil), r.sent...)
}
