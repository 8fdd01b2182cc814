package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"cybersecbot/internal/common"

	"github.com/rs/zerolog/log"
)

const (
	Subject = "Your Discord Verification Code"
	// Pending codes are swept at most this often
	sweepInterval = time.Minute
)

var (
	ErrInvalidEmail  = errors.New("email address is not in the verification domain")
	ErrNotConfigured = errors.New("email is not configured")
	ErrNoPending     = errors.New("no verification in progress")
	ErrExpired       = errors.New("verification code expired")
	ErrWrongCode     = errors.New("verification code does not match")
)

// Sender delivers an email
type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type pending struct {
	email     string
	code      string
	expiresAt time.Time
}

// Verifier proves that a user owns an address of the verification domain
// by mailing a one time code. Pending codes live in memory only
type Verifier struct {
	mu      sync.Mutex
	pending map[string]pending
	sender  Sender
	domain  string
	ttl     time.Duration
	clock   common.Clock
	sweeper common.TimedExecutor
	// Overridden in tests
	generate func() (string, error)
}

// NewVerifier creates a verifier. A nil sender leaves email unconfigured
func NewVerifier(sender Sender, domain string, ttl time.Duration, clock common.Clock) *Verifier {
	if clock == nil {
		clock = common.SystemClock()
	}
	v := &Verifier{
		pending:  map[string]pending{},
		sender:   sender,
		domain:   strings.ToLower(strings.TrimPrefix(domain, "@")),
		ttl:      ttl,
		clock:    clock,
		generate: generateCode,
	}
	v.sweeper = common.NewTimedExecutor(sweepInterval, clock, func(context.Context) error {
		v.sweepLocked()
		return nil
	})
	return v
}

func (v *Verifier) Domain() string {
	return v.domain
}

// ValidEmail reports whether the address belongs to the verification domain
func (v *Verifier) ValidEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), "@"+v.domain)
}

// Start mails a fresh code to the address and replaces any code the user
// had pending
func (v *Verifier) Start(ctx context.Context, userID string, email string) error {
	email = strings.TrimSpace(email)
	if !v.ValidEmail(email) {
		return ErrInvalidEmail
	}
	if v.sender == nil {
		return ErrNotConfigured
	}

	code, err := v.generate()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	body := fmt.Sprintf("Your one-time verification code is: %s\n\nThis code expires in %s.", code, humanDuration(v.ttl))
	if err := v.sender.Send(ctx, email, Subject, body); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweeper.Execute(context.Background())
	v.pending[userID] = pending{email: email, code: code, expiresAt: v.clock.Now().Add(v.ttl)}
	log.Info().Msg(fmt.Sprintf("Verification code sent to user %s", userID))
	return nil
}

// Check compares the submitted code with the pending one and returns the
// verified address. The code stays pending until Complete is called
func (v *Verifier) Check(userID string, code string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	// Sweep after the lookup so an expired code is reported as such
	defer v.sweeper.Execute(context.Background())

	p, ok := v.pending[userID]
	if !ok {
		return "", ErrNoPending
	}
	if !v.clock.Now().Before(p.expiresAt) {
		delete(v.pending, userID)
		return "", ErrExpired
	}
	if strings.TrimSpace(code) != p.code {
		return "", ErrWrongCode
	}
	return p.email, nil
}

// Complete forgets the pending code of a verified user
func (v *Verifier) Complete(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.pending, userID)
}

// Sweep removes the expired codes and returns how many there were
func (v *Verifier) Sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sweepLocked()
}

func (v *Verifier) sweepLocked() int {
	now := v.clock.Now()
	removed := 0
	for userID, p := range v.pending {
		if !now.Before(p.expiresAt) {
			delete(v.pending, userID)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Msg(fmt.Sprintf("Swept %d expired verification codes", removed))
	}
	return removed
}

// Number of pending codes
func (v *Verifier) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// Six digit code from the system's secure random source
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
