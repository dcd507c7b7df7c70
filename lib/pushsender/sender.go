package pushsender

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cropmate/cropmate/types"
)

// Payload is the JSON body delivered to the service worker. Title defaults to
// the application name and URL to "/" on the receiving side; empty fields are
// omitted from the wire format.
type Payload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Result is the per-subscription outcome of a send. Failures are carried as
// values so a caller fanning out over many subscriptions never aborts the
// batch. Gone marks endpoints the relay reports as permanently dead.
type Result struct {
	SubscriptionID uint
	Endpoint       string
	StatusCode     int
	Gone           bool
	Err            error
}

func (r Result) OK() bool {
	return r.Err == nil
}

type Report struct {
	Results []Result
}

func (r Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	return len(r.Results) - r.Sent()
}

func (r Report) Gone() []Result {
	var gone []Result
	for _, res := range r.Results {
		if res.Gone {
			gone = append(gone, res)
		}
	}
	return gone
}

// Sender signs and delivers push messages with a single VAPID identity.
type Sender struct {
	subject    string
	publicKey  string
	privateKey string
	ttl        int
}

func New(subject, publicKey, privateKey string) *Sender {
	return &Sender{
		subject:    subject,
		publicKey:  publicKey,
		privateKey: privateKey,
		ttl:        24 * 3600,
	}
}

// Send delivers one payload to one subscription. It never returns an error:
// delivery problems come back tagged inside the Result.
func (s *Sender) Send(subData types.PushSubscription, payload Payload) Result {
	ret := Result{SubscriptionID: subData.ID, Endpoint: subData.Endpoint}

	sub := &webpush.Subscription{
		Endpoint: subData.Endpoint,
		Keys: webpush.Keys{
			P256dh: subData.P256DH,
			Auth:   subData.Auth,
		},
	}

	pushPayload, err := json.Marshal(payload)
	if err != nil {
		ret.Err = errors.Wrap(err, "marshalling push payload")
		return ret
	}

	resp, err := webpush.SendNotification(pushPayload, sub, &webpush.Options{
		Subscriber:      s.subject,
		Topic:           payload.Tag,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		ret.Err = errors.Wrap(err, "sending push notification")
		return ret
	}
	defer resp.Body.Close()

	ret.StatusCode = resp.StatusCode
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		ret.Gone = true
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		ret.Err = fmt.Errorf("push relay rejected send: status %d: %s", resp.StatusCode, string(respBody))
		return ret
	}

	logrus.WithField("subscription", subData.ID).Debugf("Sent push notification, status %d", resp.StatusCode)
	return ret
}

// SendAll fans out concurrently. Sends are independent: no ordering, no
// atomicity, partial success is a normal outcome reported per item.
func (s *Sender) SendAll(subs []types.PushSubscription, payload Payload) Report {
	report := Report{Results: make([]Result, len(subs))}

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub types.PushSubscription) {
			defer wg.Done()
			report.Results[i] = s.Send(sub, payload)
		}(i, sub)
	}
	wg.Wait()

	for _, res := range report.Results {
		if !res.OK() {
			logrus.Error(errors.Wrapf(res.Err, "push to subscription %d", res.SubscriptionID))
		}
	}
	return report
}
