package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

type setChecker map[string]bool

func (s setChecker) Has(id string) bool { return s[id] }

func newTestRegistry() *NotificationRegistry {
	return New(ReferenceChecker{
		Templates: setChecker{"user_welcome": true, "daily_stats_report": true},
		Channels:  setChecker{"email": true, "slack": true},
		Policies:  setChecker{"time_window": true},
	})
}

func signupDef() types.NotificationDefinition {
	return types.NotificationDefinition{
		ID:            "user_signup",
		Name:          "User Signup",
		Channels:      []string{"email", "slack"},
		TemplateID:    "user_welcome",
		EventSourceID: "user_signup",
		Enabled:       true,
	}
}

func TestRegister_And_Get(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(signupDef()))

	def, err := r.Get("user_signup")
	require.NoError(t, err)
	assert.Equal(t, "User Signup", def.Name)
	assert.Equal(t, []string{"email", "slack"}, def.Channels)
}

func TestRegister_DuplicateID(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(signupDef()))

	err := r.Register(signupDef())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConfigDuplicateDefinition, appErr.Code)
}

func TestRegister_UnknownReferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.NotificationDefinition)
	}{
		{"unknown template", func(d *types.NotificationDefinition) { d.TemplateID = "ghost" }},
		{"unknown channel", func(d *types.NotificationDefinition) { d.Channels = []string{"email", "pager"} }},
		{"unknown policy", func(d *types.NotificationDefinition) { d.DedupPolicyID = "ghost" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			def := signupDef()
			tt.mutate(&def)

			err := r.Register(def)
			require.Error(t, err)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeConfigUnknownReference, appErr.Code)

			_, err = r.Get(def.ID)
			assert.Error(t, err, "rejected definition must not be stored")
		})
	}
}

func TestRegister_EmptyPolicyIsOptional(t *testing.T) {
	r := newTestRegistry()
	def := signupDef()
	def.DedupPolicyID = ""
	assert.NoError(t, r.Register(def))
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(signupDef()))

	require.NoError(t, r.Unregister("user_signup"))

	_, err := r.Get("user_signup")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundDefinition, appErr.Code)

	assert.Empty(t, r.ListAll())
}

func TestUnregister_NotFound(t *testing.T) {
	r := newTestRegistry()
	err := r.Unregister("ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundDefinition, appErr.Code)
}

func TestFindByEventSource_EnabledOnlyInOrder(t *testing.T) {
	r := newTestRegistry()

	first := signupDef()
	first.ID = "signup_email"
	first.Channels = []string{"email"}

	disabled := signupDef()
	disabled.ID = "signup_disabled"
	disabled.Enabled = false

	second := signupDef()
	second.ID = "signup_slack"
	second.Channels = []string{"slack"}

	other := signupDef()
	other.ID = "stats"
	other.EventSourceID = "daily_stats"
	other.TemplateID = "daily_stats_report"

	for _, def := range []types.NotificationDefinition{first, disabled, second, other} {
		require.NoError(t, r.Register(def))
	}

	defs := r.FindByEventSource("user_signup")
	require.Len(t, defs, 2)
	assert.Equal(t, "signup_email", defs[0].ID)
	assert.Equal(t, "signup_slack", defs[1].ID)
}

func TestFindByEventSource_NoMatch(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(signupDef()))
	assert.Empty(t, r.FindByEventSource("ghost"))
}

func TestListAll_RegistrationOrder(t *testing.T) {
	r := newTestRegistry()

	stats := signupDef()
	stats.ID = "daily_stats"
	stats.EventSourceID = "daily_stats"
	stats.TemplateID = "daily_stats_report"
	stats.Enabled = false

	require.NoError(t, r.Register(signupDef()))
	require.NoError(t, r.Register(stats))

	all := r.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "user_signup", all[0].ID)
	assert.Equal(t, "daily_stats", all[1].ID)
}

func TestUnregister_PreservesOrderOfRemaining(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"a", "b", "c"} {
		def := signupDef()
		def.ID = id
		require.NoError(t, r.Register(def))
	}

	require.NoError(t, r.Unregister("b"))

	all := r.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[1].ID)
}
