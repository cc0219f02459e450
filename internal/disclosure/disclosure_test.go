package disclosure

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	profilemodels "ghostpass/internal/profile/models"
	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
)

func fullProfile() *profilemodels.Profile {
	verified := time.Date(2026, 4, 12, 9, 30, 0, 0, time.UTC)
	return &profilemodels.Profile{
		SubjectID:        id.SubjectID(uuid.New()),
		DisplayName:      "Ana K.",
		MemberID:         "GP-00417",
		Badges:           []string{"verified-age", "vip"},
		SocialHandles:    []string{"@ana"},
		IDDocumentRef:    "doc://passport/abc",
		PaymentLast4:     "4242",
		BarTabEnabled:    true,
		HealthStatus:     profilemodels.HealthVerified,
		HealthVerifiedAt: &verified,
	}
}

func allConsent() *profilemodels.ConsentFlags {
	return &profilemodels.ConsentFlags{Identity: true, SocialHandles: true, IDDocument: true, Payment: true, Health: true}
}

func TestProjectPaymentOnly(t *testing.T) {
	out := Project(Input{
		Bundle:  models.Bundle{Payment: true},
		Consent: allConsent(),
		Profile: fullProfile(),
		Viewer:  ViewerDoor,
	})

	assert.Nil(t, out.Identity)
	assert.Nil(t, out.Health)
	require.NotNil(t, out.Payment)
	assert.Equal(t, "•••• 4242", out.Payment.Method)
	assert.True(t, out.Payment.BarTabEnabled)
	assert.Equal(t, []string{"payment.method", "payment.bar_tab_enabled"}, out.Fields())
}

func TestProjectRequiresBothGates(t *testing.T) {
	out := Project(Input{
		Bundle:  models.Bundle{Identity: true, Payment: true, Health: true},
		Consent: &profilemodels.ConsentFlags{Payment: true},
		Profile: fullProfile(),
		Viewer:  ViewerDoor,
	})
	assert.Nil(t, out.Identity)
	assert.Nil(t, out.Health)
	assert.NotNil(t, out.Payment)

	out = Project(Input{
		Bundle:  models.Bundle{},
		Consent: allConsent(),
		Profile: fullProfile(),
		Viewer:  ViewerDoor,
	})
	assert.True(t, out.IsEmpty())
}

func TestProjectSocialHandlesNeedTheirOwnConsent(t *testing.T) {
	consent := allConsent()
	consent.SocialHandles = false
	out := Project(Input{Bundle: models.Bundle{Identity: true}, Consent: consent, Profile: fullProfile(), Viewer: ViewerDoor})
	require.NotNil(t, out.Identity)
	assert.Equal(t, "Ana K.", out.Identity.DisplayName)
	assert.Nil(t, out.Identity.SocialHandles)
}

func TestProjectIDDocumentOnlyAtDoor(t *testing.T) {
	bundle := models.Bundle{Identity: true, IDDocument: true}

	door := Project(Input{Bundle: bundle, Consent: allConsent(), Profile: fullProfile(), Viewer: ViewerDoor})
	assert.Equal(t, "doc://passport/abc", door.Identity.IDDocumentRef)

	browser := Project(Input{Bundle: bundle, Consent: allConsent(), Profile: fullProfile(), Viewer: ViewerBrowser})
	assert.Empty(t, browser.Identity.IDDocumentRef)

	noSubFlag := Project(Input{Bundle: models.Bundle{Identity: true}, Consent: allConsent(), Profile: fullProfile(), Viewer: ViewerDoor})
	assert.Empty(t, noSubFlag.Identity.IDDocumentRef)
}

func TestProjectHealthIsCoarse(t *testing.T) {
	out := Project(Input{Bundle: models.Bundle{Health: true}, Consent: allConsent(), Profile: fullProfile(), Viewer: ViewerDoor})
	require.NotNil(t, out.Health)
	assert.Equal(t, "verified", out.Health.Status)
	assert.Equal(t, "2026-04-12", out.Health.LastVerified)
}

func TestProjectNilInputsDiscloseNothing(t *testing.T) {
	assert.True(t, Project(Input{Bundle: models.Bundle{Identity: true}, Profile: fullProfile()}).IsEmpty())
	assert.True(t, Project(Input{Bundle: models.Bundle{Identity: true}, Consent: allConsent()}).IsEmpty())
}

func TestMaskInstrument(t *testing.T) {
	assert.Equal(t, "•••• 4242", MaskInstrument("4242"))
	assert.Equal(t, "•••• 1111", MaskInstrument("4111 1111 1111 1111"))
	assert.Equal(t, "", MaskInstrument(""))
	assert.NotContains(t, MaskInstrument("4111111111111111"), "41111")
}

// Removing any single flag from either gate never adds a visible field.
func TestProjectIsMonotonic(t *testing.T) {
	for _, viewer := range []Viewer{ViewerDoor, ViewerBrowser} {
		for b := 0; b < 1<<4; b++ {
			for c := 0; c < 1<<5; c++ {
				base := project(b, c, viewer)
				for bit := 0; bit < 4; bit++ {
					if b&(1<<bit) != 0 {
						assertSubset(t, project(b&^(1<<bit), c, viewer), base)
					}
				}
				for bit := 0; bit < 5; bit++ {
					if c&(1<<bit) != 0 {
						assertSubset(t, project(b, c&^(1<<bit), viewer), base)
					}
				}
			}
		}
	}
}

func project(b, c int, viewer Viewer) []string {
	return Project(Input{
		Bundle: models.Bundle{
			Identity:   b&1 != 0,
			Payment:    b&2 != 0,
			Health:     b&4 != 0,
			IDDocument: b&8 != 0,
		},
		Consent: &profilemodels.ConsentFlags{
			Identity:      c&1 != 0,
			Payment:       c&2 != 0,
			Health:        c&4 != 0,
			IDDocument:    c&8 != 0,
			SocialHandles: c&16 != 0,
		},
		Profile: fullProfile(),
		Viewer:  viewer,
	}).Fields()
}

func assertSubset(t *testing.T, sub, super []string) {
	t.Helper()
	set := make(map[string]bool, len(super))
	for _, f := range super {
		set[f] = true
	}
	for _, f := range sub {
		if !set[f] {
			t.Fatalf("field %s appeared after removing a flag (had %s)", f, strings.Join(super, ","))
		}
	}
}
