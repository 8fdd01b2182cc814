package common

import (
	"time"

	"golang.org/x/time/rate"
)

// A restriction means that only the specified number of requests
// are allowed for a specific time duration
type Restriction struct {
	Requests int
	Duration time.Duration
}

// Valid reports whether the restriction can be turned into a limiter
func (rest *Restriction) Valid() bool {
	return rest.Requests > 0 && rest.Duration > 0
}

// Limiter converts the restriction into a token bucket that refills one
// request every Duration/Requests and allows bursts of Requests
func (rest *Restriction) Limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(rest.Duration/time.Duration(rest.Requests)), rest.Requests)
}
