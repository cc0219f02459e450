// Package disclosure computes the redacted profile a scanning party may see.
// A field is visible only when the token's bundle carries its category and
// the bearer's standing consent allows it; neither gate alone is enough.
package disclosure

import (
	"strings"
	"time"
	"unicode"

	profilemodels "ghostpass/internal/profile/models"
	"ghostpass/internal/token/models"
)

// Viewer is who the projection is rendered for.
type Viewer string

const (
	ViewerDoor    Viewer = "door"
	ViewerBrowser Viewer = "browser"
)

type IdentityView struct {
	DisplayName   string   `json:"display_name,omitempty"`
	MemberID      string   `json:"member_id,omitempty"`
	Badges        []string `json:"badges,omitempty"`
	SocialHandles []string `json:"social_handles,omitempty"`
	IDDocumentRef string   `json:"id_document_ref,omitempty"`
}

// PaymentView carries no amounts.
type PaymentView struct {
	Method        string `json:"method,omitempty"`
	BarTabEnabled bool   `json:"bar_tab_enabled"`
}

type HealthView struct {
	Status       string `json:"status"`
	LastVerified string `json:"last_verified,omitempty"`
}

type RedactedProfile struct {
	Identity *IdentityView `json:"identity,omitempty"`
	Payment  *PaymentView  `json:"payment,omitempty"`
	Health   *HealthView   `json:"health,omitempty"`
	// ViewExpiresAt is set for browser views only.
	ViewExpiresAt *time.Time `json:"view_expires_at,omitempty"`
}

type Input struct {
	Bundle  models.Bundle
	Consent *profilemodels.ConsentFlags
	Profile *profilemodels.Profile
	Viewer  Viewer
}

// Project intersects the bundle with consent and copies only what survives.
func Project(in Input) RedactedProfile {
	var out RedactedProfile
	if in.Consent == nil || in.Profile == nil {
		return out
	}
	b, c, p := in.Bundle, in.Consent, in.Profile

	if b.Identity && c.Identity {
		v := &IdentityView{
			DisplayName: p.DisplayName,
			MemberID:    p.MemberID,
			Badges:      append([]string(nil), p.Badges...),
		}
		if c.SocialHandles {
			v.SocialHandles = append([]string(nil), p.SocialHandles...)
		}
		if b.IDDocument && c.IDDocument && in.Viewer == ViewerDoor {
			v.IDDocumentRef = p.IDDocumentRef
		}
		out.Identity = v
	}

	if b.Payment && c.Payment {
		out.Payment = &PaymentView{
			Method:        MaskInstrument(p.PaymentLast4),
			BarTabEnabled: p.BarTabEnabled,
		}
	}

	if b.Health && c.Health {
		status := p.HealthStatus
		if !status.IsValid() {
			status = profilemodels.HealthNone
		}
		v := &HealthView{Status: string(status)}
		if p.HealthVerifiedAt != nil && status != profilemodels.HealthNone {
			v.LastVerified = p.HealthVerifiedAt.UTC().Format(time.DateOnly)
		}
		out.Health = v
	}
	return out
}

// MaskInstrument renders at most the last four digits of an instrument.
func MaskInstrument(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	if digits == "" {
		return ""
	}
	return "•••• " + digits
}

// Fields lists the visible field names. Used by terminals to decide what to
// render and by tests to compare projections.
func (r RedactedProfile) Fields() []string {
	var fields []string
	if v := r.Identity; v != nil {
		fields = append(fields, "identity.display_name", "identity.member_id", "identity.badges")
		if v.SocialHandles != nil {
			fields = append(fields, "identity.social_handles")
		}
		if v.IDDocumentRef != "" {
			fields = append(fields, "identity.id_document_ref")
		}
	}
	if r.Payment != nil {
		fields = append(fields, "payment.method", "payment.bar_tab_enabled")
	}
	if v := r.Health; v != nil {
		fields = append(fields, "health.status")
		if v.LastVerified != "" {
			fields = append(fields, "health.last_verified")
		}
	}
	return fields
}

func (r RedactedProfile) IsEmpty() bool {
	return r.Identity == nil && r.Payment == nil && r.Health == nil
}
