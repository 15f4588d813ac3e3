package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const twilioAPIURL = "https://api.twilio.com"

// Twilio sends WhatsApp messages through the Twilio Messages API.
type Twilio struct {
	accountSID string
	authToken  string
	from       string
	timeout    time.Duration
	// api overrides the Twilio host, e.g. a local mock; nil means the real API.
	api *url.URL
}

// NewTwilio builds a sender. baseURL other than the public Twilio API
// redirects every call to that host.
func NewTwilio(baseURL, accountSID, authToken, from string) *Twilio {
	t := &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		timeout:    15 * time.Second,
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" && baseURL != twilioAPIURL {
		if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
			t.api = u
		}
	}
	return t
}

func (t *Twilio) Name() string { return "twilio" }

func whatsapp(addr string) string {
	if strings.HasPrefix(addr, "whatsapp:") {
		return addr
	}
	return "whatsapp:" + addr
}

// The SDK has no context-aware calls, so each send gets a client whose
// transport carries ctx.
func (t *Twilio) rest(ctx context.Context) *twilio.RestClient {
	c := &twclient.Client{
		Credentials: twclient.NewCredentials(t.accountSID, t.authToken),
		HTTPClient: &http.Client{
			Timeout:   t.timeout,
			Transport: &twilioTransport{ctx: ctx, api: t.api, next: http.DefaultTransport},
		},
	}
	c.SetAccountSid(t.accountSID)
	return twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
}

func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", deliveryErr(t.Name(), err)
	}
	params := &openapi.CreateMessageParams{}
	params.SetPathAccountSid(t.accountSID)
	params.SetFrom(whatsapp(t.from))
	params.SetTo(whatsapp(to))
	params.SetBody(body)

	m, err := t.rest(ctx).Api.CreateMessage(params)
	if err != nil {
		var re *twclient.TwilioRestError
		if errors.As(err, &re) {
			err = fmt.Errorf("http %d: code %d: %s", re.Status, re.Code, re.Message)
		}
		return "", deliveryErr(t.Name(), err)
	}
	if m == nil || m.Sid == nil || *m.Sid == "" {
		return "", deliveryErr(t.Name(), errors.New("response carries no message sid"))
	}
	return *m.Sid, nil
}

type twilioTransport struct {
	ctx  context.Context
	api  *url.URL
	next http.RoundTripper
}

func (tr *twilioTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(tr.ctx)
	if tr.api != nil {
		req.URL.Scheme = tr.api.Scheme
		req.URL.Host = tr.api.Host
		req.Host = tr.api.Host
	}
	return tr.next.RoundTrip(req)
}
