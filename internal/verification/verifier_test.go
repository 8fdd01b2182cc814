package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"cybersecbot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(ctx context.Context, to string, subject string, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to, subject, body})
	return nil
}

var start = time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)

func newTestVerifier(sender Sender) (*Verifier, *testutil.ManualClock) {
	clock := testutil.NewManualClock(start)
	v := NewVerifier(sender, "arizona.edu", 10*time.Minute, clock)
	v.generate = func() (string, error) { return "123456", nil }
	return v, clock
}

func TestValidEmail(t *testing.T) {
	v, _ := newTestVerifier(&fakeSender{})

	assert.True(t, v.ValidEmail("wilbur@arizona.edu"))
	assert.True(t, v.ValidEmail("  Wilbur@Arizona.EDU "))
	assert.False(t, v.ValidEmail("wilbur@asu.edu"))
	assert.False(t, v.ValidEmail("wilbur@notarizona.edu"))
	assert.False(t, v.ValidEmail("arizona.edu"))
}

func TestStart_SendsCode(t *testing.T) {
	sender := &fakeSender{}
	v, _ := newTestVerifier(sender)

	require.NoError(t, v.Start(context.Background(), "u1", "wilbur@arizona.edu"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "wilbur@arizona.edu", sender.sent[0].to)
	assert.Equal(t, Subject, sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].body, "123456")
	assert.Contains(t, sender.sent[0].body, "10 minutes")
	assert.Equal(t, 1, v.Pending())
}

func TestStart_Errors(t *testing.T) {
	ctx := context.Background()

	v, _ := newTestVerifier(&fakeSender{})
	assert.ErrorIs(t, v.Start(ctx, "u1", "wilbur@gmail.com"), ErrInvalidEmail)

	v, _ = newTestVerifier(nil)
	assert.ErrorIs(t, v.Start(ctx, "u1", "wilbur@arizona.edu"), ErrNotConfigured)

	down := errors.New("smtp down")
	v, _ = newTestVerifier(&fakeSender{err: down})
	assert.ErrorIs(t, v.Start(ctx, "u1", "wilbur@arizona.edu"), down)
	assert.Equal(t, 0, v.Pending(), "no code is pending when the mail was not sent")
}

func TestCheck(t *testing.T) {
	v, _ := newTestVerifier(&fakeSender{})

	_, err := v.Check("u1", "123456")
	assert.ErrorIs(t, err, ErrNoPending)

	require.NoError(t, v.Start(context.Background(), "u1", "wilbur@arizona.edu"))
	_, err = v.Check("u1", "654321")
	assert.ErrorIs(t, err, ErrWrongCode)

	email, err := v.Check("u1", " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, "wilbur@arizona.edu", email)
	assert.Equal(t, 1, v.Pending(), "pending until completed")

	v.Complete("u1")
	_, err = v.Check("u1", "123456")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestCheck_Expired(t *testing.T) {
	v, clock := newTestVerifier(&fakeSender{})
	require.NoError(t, v.Start(context.Background(), "u1", "wilbur@arizona.edu"))

	clock.Advance(10 * time.Minute)
	_, err := v.Check("u1", "123456")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, v.Pending())
}

func TestSweep(t *testing.T) {
	v, clock := newTestVerifier(&fakeSender{})
	ctx := context.Background()
	require.NoError(t, v.Start(ctx, "u1", "one@arizona.edu"))
	clock.Advance(5 * time.Minute)
	require.NoError(t, v.Start(ctx, "u2", "two@arizona.edu"))

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, v.Sweep())
	assert.Equal(t, 1, v.Pending())
}

func TestGenerateCode(t *testing.T) {
	for range 100 {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.NotEqual(t, '0', code[0])
	}
}

func TestMailer_RejectsInvalidRecipient(t *testing.T) {
	m := NewMailer("smtp.example.com", 465, "club@example.com", "secret")
	assert.Error(t, m.Send(context.Background(), "not an address", Subject, "body"))
}

func TestCheck_ExpiredLongAfterLastSweep(t *testing.T) {
	v, clock := newTestVerifier(&fakeSender{})
	ctx := context.Background()
	require.NoError(t, v.Start(ctx, "u1", "one@arizona.edu"))
	require.NoError(t, v.Start(ctx, "u2", "two@arizona.edu"))

	// The sweeper is long overdue, the user still learns the code expired
	clock.Advance(3 * time.Hour)
	_, err := v.Check("u1", "123456")
	assert.ErrorIs(t, err, ErrExpired)

	// The sweep still ran for everyone else
	assert.Equal(t, 0, v.Pending())
}
