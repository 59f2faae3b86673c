package otp

import "time"

// Challenge is the single active passcode for a phone number.
// Only the bcrypt hash of the code is stored.
type Challenge struct {
	Phone      string
	CodeHash   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

func (c *Challenge) Consumed() bool {
	return c.ConsumedAt != nil
}

func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Remaining is the countdown shown to the buyer; zero once expired.
func (c *Challenge) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type IssueResult struct {
	Phone       string    `json:"phone"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ResendAfter time.Time `json:"resendAfter"`
}
