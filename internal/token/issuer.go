// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Strategy names.
const (
	ModeSigned = "signed"
	ModeSealed = "sealed"
)

// ErrInvalid is the single error class for every rejected grant.
var ErrInvalid = errors.New("invalid or expired download link")

// Rejection reasons, wrapped by ErrInvalid for logs and metrics only.
const (
	ReasonMalformed = "malformed"
	ReasonSignature = "signature"
	ReasonExpired   = "expired"
	ReasonPayload   = "payload"
)

// RejectError carries the internal reason behind ErrInvalid.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return ErrInvalid.Error() + ": " + e.Reason }

func (e *RejectError) Unwrap() error { return ErrInvalid }

// Reason extracts the rejection reason from err, or "" when err is not a rejection.
func Reason(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

func reject(reason string) error { return &RejectError{Reason: reason} }

// Claims describe what a grant entitles its holder to.
type Claims struct {
	SessionID string    `json:"sid"`
	FileName  string    `json:"fn,omitempty"`
	Size      int64     `json:"sz,omitempty"`
	MimeType  string    `json:"mt,omitempty"`
	ExpiresAt time.Time `json:"-"`
	ExpiresMs int64     `json:"exp"`
}

// Grant is the client-facing token material.
type Grant struct {
	SessionID string
	Payload   string
	Signature string
	ExpiresAt time.Time
}

// Query renders the grant as URL query parameters.
func (g Grant) Query() url.Values {
	q := url.Values{}
	if g.Payload != "" {
		q.Set("payload", g.Payload)
	} else {
		q.Set("id", g.SessionID)
	}
	q.Set("expires", strconv.FormatInt(g.ExpiresAt.UnixMilli(), 10))
	q.Set("signature", g.Signature)
	return q
}

// Redemption is an untrusted grant as presented by a client.
type Redemption struct {
	SessionID string
	Payload   string
	Expires   string
	Signature string
}

// RedemptionFromQuery reads a redemption from request query parameters.
func RedemptionFromQuery(q url.Values) Redemption {
	return Redemption{
		SessionID: q.Get("id"),
		Payload:   q.Get("payload"),
		Expires:   q.Get("expires"),
		Signature: q.Get("signature"),
	}
}

// Issuer mints and redeems grants.
type Issuer interface {
	Mode() string
	Issue(c Claims) (Grant, error)
	Redeem(r Redemption, now time.Time) (Claims, error)
}

// NewIssuer builds the issuer for mode.
func NewIssuer(mode string, secret []byte) (Issuer, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return nil, err
	}
	switch mode {
	case "", ModeSigned:
		return &SignedIssuer{signer: signer}, nil
	case ModeSealed:
		sealer, err := NewSealer(secret)
		if err != nil {
			return nil, err
		}
		return &SealedIssuer{signer: signer, sealer: sealer}, nil
	default:
		return nil, fmt.Errorf("token: unknown mode %q", mode)
	}
}

func parseExpires(raw string) (int64, bool) {
	if raw == "" || len(raw) > 19 {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return ms, true
}

// SignedIssuer binds the session id and expiry with an HMAC.
type SignedIssuer struct {
	signer *Signer
}

func (i *SignedIssuer) Mode() string { return ModeSigned }

func (i *SignedIssuer) Issue(c Claims) (Grant, error) {
	if c.SessionID == "" {
		return Grant{}, errors.New("token: missing session id")
	}
	exp := time.UnixMilli(c.ExpiresAt.UnixMilli())
	return Grant{
		SessionID: c.SessionID,
		Signature: i.signer.Sign(c.SessionID, exp),
		ExpiresAt: exp,
	}, nil
}

func (i *SignedIssuer) Redeem(r Redemption, now time.Time) (Claims, error) {
	if r.SessionID == "" || r.Signature == "" {
		return Claims{}, reject(ReasonMalformed)
	}
	ms, ok := parseExpires(r.Expires)
	if !ok {
		return Claims{}, reject(ReasonMalformed)
	}
	if !i.signer.verifyMillis(r.SessionID, ms, r.Signature) {
		return Claims{}, reject(ReasonSignature)
	}
	exp := time.UnixMilli(ms)
	if !now.Before(exp) {
		return Claims{}, reject(ReasonExpired)
	}
	return Claims{SessionID: r.SessionID, ExpiresAt: exp, ExpiresMs: ms}, nil
}

// SealedIssuer encrypts the claims and signs the envelope with its expiry.
type SealedIssuer struct {
	signer *Signer
	sealer *Sealer
}

func (i *SealedIssuer) Mode() string { return ModeSealed }

func (i *SealedIssuer) Issue(c Claims) (Grant, error) {
	if c.SessionID == "" {
		return Grant{}, errors.New("token: missing session id")
	}
	c.ExpiresMs = c.ExpiresAt.UnixMilli()
	exp := time.UnixMilli(c.ExpiresMs)
	payload, err := i.sealer.Seal(c)
	if err != nil {
		return Grant{}, err
	}
	return Grant{
		SessionID: c.SessionID,
		Payload:   payload,
		Signature: i.signer.Sign(payload, exp),
		ExpiresAt: exp,
	}, nil
}

func (i *SealedIssuer) Redeem(r Redemption, now time.Time) (Claims, error) {
	if r.Payload == "" || r.Signature == "" {
		return Claims{}, reject(ReasonMalformed)
	}
	ms, ok := parseExpires(r.Expires)
	if !ok {
		return Claims{}, reject(ReasonMalformed)
	}
	if !i.signer.verifyMillis(r.Payload, ms, r.Signature) {
		return Claims{}, reject(ReasonSignature)
	}
	exp := time.UnixMilli(ms)
	if !now.Before(exp) {
		return Claims{}, reject(ReasonExpired)
	}
	var c Claims
	if err := i.sealer.Open(r.Payload, &c); err != nil {
		return Claims{}, reject(ReasonPayload)
	}
	if c.ExpiresMs != ms || c.SessionID == "" {
		return Claims{}, reject(ReasonPayload)
	}
	c.ExpiresAt = exp
	return c, nil
}
