package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrix(t *testing.T) {
	m, err := LoadDefault()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		user    string
		key     string
		allowed bool
	}{
		{"admin", WIRManage, true},
		{"admin", "anything.at-all", true},
		{"pm-1", BoxesCreate, true},
		{"pm-1", WIRApprove, true},
		{"engineer-1", BoxesCreate, false},
		{"engineer-1", WIRCreate, true},
		{"engineer-1", WIRReview, false},
		{"foreman-1", ActivitiesUpdateProgress, true},
		{"foreman-1", WIRApprove, false},
		{"qc-1", WIRReview, true},
		{"qc-1", WIRApprove, true},
		{"qc-1", ActivitiesUpdateProgress, false},
		{"viewer-1", BoxesView, true},
		{"viewer-1", WIRCreate, false},
		{"system:sla-monitor", WIRManage, true},
		{"system:sla-monitor", WIRApprove, false},
		{"stranger", BoxesView, false},
	}

	for _, tt := range tests {
		t.Run(tt.user+" "+tt.key, func(t *testing.T) {
			ok, err := m.HasPermission(ctx, tt.user, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, ok)
		})
	}
}

func TestLoad_UndeclaredRole(t *testing.T) {
	_, err := Load([]byte(`
roles:
  Viewer:
    permissions: [boxes.view]
users:
  bob: [Viewer, Ghost]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob -> Ghost")
}

func TestLoad_Garbage(t *testing.T) {
	_, err := Load([]byte("roles: [unterminated"))
	assert.Error(t, err)
}

func TestMatrix_AssignRoles(t *testing.T) {
	m, err := LoadDefault()
	require.NoError(t, err)
	ctx := context.Background()

	ok, _ := m.HasPermission(ctx, "new-hire", WIRReview)
	assert.False(t, ok)

	require.NoError(t, m.AssignRoles("new-hire", "QCInspector"))
	ok, _ = m.HasPermission(ctx, "new-hire", WIRReview)
	assert.True(t, ok)
	assert.Equal(t, []string{"QCInspector"}, m.Roles("new-hire"))

	assert.Error(t, m.AssignRoles("new-hire", "Ghost"))
}

func TestHasPermission_CancelledContext(t *testing.T) {
	m, err := LoadDefault()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.HasPermission(ctx, "admin", BoxesView)
	assert.ErrorIs(t, err, context.Canceled)
}
