package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/dispatch"
)

var digestCfg = appconfig.DigestConfig{
	Recipient: "ops@example.com",
	FromEmail: "insights@example.com",
	FromName:  "Storefront Insights",
}

var testMsg = dispatch.Message{Subject: "[Insights] digest", TextBody: "text", HTMLBody: "<p>html</p>"}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSESMailer(t *testing.T) {
	api := &fakeSES{}
	m := newSESMailer(api, digestCfg)

	id, err := m.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, "ses-123", id)

	require.NotNil(t, api.input)
	assert.Equal(t, "Storefront Insights <insights@example.com>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "[Insights] digest", aws.ToString(api.input.Content.Simple.Subject.Data))
	assert.Equal(t, "text", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>html</p>", aws.ToString(api.input.Content.Simple.Body.Html.Data))
}

func TestSESMailer_Error(t *testing.T) {
	m := newSESMailer(&fakeSES{err: errors.New("MessageRejected")}, digestCfg)
	_, err := m.Send(context.Background(), testMsg)
	assert.ErrorContains(t, err, "MessageRejected")
}

type fakeSendGrid struct {
	sent     *mail.SGMailV3
	response *rest.Response
	err      error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	return f.response, f.err
}

func TestSendGridMailer(t *testing.T) {
	api := &fakeSendGrid{response: &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"sg-1"}},
	}}
	m := newSendGridMailer(api, digestCfg)

	id, err := m.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, "sg-1", id)

	require.NotNil(t, api.sent)
	assert.Equal(t, "[Insights] digest", api.sent.Subject)
	assert.Equal(t, "insights@example.com", api.sent.From.Address)
	require.Len(t, api.sent.Personalizations, 1)
	assert.Equal(t, "ops@example.com", api.sent.Personalizations[0].To[0].Address)
}

func TestSendGridMailer_BadStatus(t *testing.T) {
	m := newSendGridMailer(&fakeSendGrid{response: &rest.Response{StatusCode: 401, Body: "unauthorized"}}, digestCfg)
	_, err := m.Send(context.Background(), testMsg)
	assert.ErrorContains(t, err, "status 401")
}

func TestLogMailer(t *testing.T) {
	id, err := NewLogMailer("ops@example.com").Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

type flakyMailer struct {
	calls int
	err   error
}

func (f *flakyMailer) Send(context.Context, dispatch.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyMailer{err: errors.New("provider down")}
	b := NewBreaker(next, BreakerSettings{Failures: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := b.Send(context.Background(), testMsg)
		assert.ErrorContains(t, err, "provider down")
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Send(context.Background(), testMsg)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, next.calls, "open circuit does not call the provider")
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(&flakyMailer{}, BreakerSettings{})
	id, err := b.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, "ok", id)
	assert.Equal(t, "closed", b.State())
}

func TestNew(t *testing.T) {
	cfg := appconfig.Default()

	m, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Breaker{}, m)

	cfg.Digest.Provider = "sendgrid"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err, "missing api key")

	cfg.SendGrid.APIKey = "SG.test"
	m, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &SendGridMailer{}, m.(*Breaker).next)

	cfg.Digest.Provider = "carrier-pigeon"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
