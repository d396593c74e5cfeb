// Package drafts hands a token creation request from the create step to the review step.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotFound is returned when a requested draft does not exist.
	ErrNotFound = errors.New("draft not found")

	// ErrExpired is returned when the draft exists but its TTL has passed.
	ErrExpired = errors.New("draft expired")

	// ErrDuplicateKey is returned when a draft with the same ID already exists.
	ErrDuplicateKey = errors.New("duplicate draft id")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultTTL bounds how long a draft waits for review.
const DefaultTTL = time.Hour

// Draft is a pending token creation owned by a wallet.
type Draft struct {
	ID        string              `json:"id"`
	Owner     string              `json:"owner"`
	Params    jsoniter.RawMessage `json:"params"`
	CreatedAt time.Time           `json:"createdAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// Expired reports whether the draft is past its expiry at now.
func (d *Draft) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// Decode unmarshals the stored params into v.
func (d *Draft) Decode(v interface{}) error {
	return json.Unmarshal(d.Params, v)
}

// New builds a draft with a fresh ID holding params encoded as JSON.
func New(owner string, params interface{}, ttl time.Duration) (*Draft, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: encode params: %v", ErrInvalidInput, err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()
	return &Draft{
		ID:        uuid.NewString(),
		Owner:     owner,
		Params:    raw,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func validate(d *Draft) error {
	switch {
	case d == nil:
		return fmt.Errorf("%w: nil draft", ErrInvalidInput)
	case d.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	case d.Owner == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	case len(d.Params) == 0:
		return fmt.Errorf("%w: params are required", ErrInvalidInput)
	}
	return nil
}

// Store persists drafts.
type Store interface {
	// Put inserts a draft. Returns ErrDuplicateKey if the ID exists.
	Put(ctx context.Context, d *Draft) error
	// Get returns ErrNotFound or ErrExpired when the draft cannot be reviewed.
	Get(ctx context.Context, id string) (*Draft, error)
	// Claim removes and returns the draft of owner in one step. Of concurrent
	// callers exactly one gets the draft; the others get ErrNotFound.
	// A draft of another owner reads as ErrNotFound and stays stored.
	Claim(ctx context.Context, id, owner string) (*Draft, error)
	// Delete returns ErrNotFound if the draft does not exist.
	Delete(ctx context.Context, id string) error
}
