// Package authorization answers permission checks from a static role matrix.
package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed permissions.yaml
var defaultMatrix []byte

// Permission keys checked by the production workflow
const (
	BoxesView                = "boxes.view"
	BoxesCreate              = "boxes.create"
	BoxesUpdateStatus        = "boxes.update-status"
	ActivitiesUpdateProgress = "activities.update-progress"
	WIRView                  = "wir.view"
	WIRCreate                = "wir.create"
	WIRReview                = "wir.review"
	WIRApprove               = "wir.approve"
	WIRReject                = "wir.reject"
	WIRManage                = "wir.manage"
)

// SLAMonitorUser is the identity the inspection SLA worker acts as
const SLAMonitorUser = "system:sla-monitor"

// Role is a named set of permission grants
type Role struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type matrixFile struct {
	Roles map[string]Role     `yaml:"roles"`
	Users map[string][]string `yaml:"users"`
}

// Matrix resolves users to roles and roles to permissions.
// It is safe for concurrent use; AssignRoles may be called at runtime.
type Matrix struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{}
	users map[string][]string
}

// LoadDefault parses the embedded matrix
func LoadDefault() (*Matrix, error) {
	return Load(defaultMatrix)
}

// LoadFile parses a matrix from disk
func LoadFile(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission matrix: %w", err)
	}
	return Load(data)
}

// Load parses a YAML matrix. Users referring to undeclared roles are rejected.
func Load(data []byte) (*Matrix, error) {
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse permission matrix: %w", err)
	}

	m := &Matrix{
		roles: make(map[string]map[string]struct{}, len(f.Roles)),
		users: make(map[string][]string, len(f.Users)),
	}
	for name, role := range f.Roles {
		grants := make(map[string]struct{}, len(role.Permissions))
		for _, p := range role.Permissions {
			grants[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
		}
		m.roles[name] = grants
	}

	var unknown []string
	for user, roles := range f.Users {
		for _, r := range roles {
			if _, ok := m.roles[r]; !ok {
				unknown = append(unknown, fmt.Sprintf("%s -> %s", user, r))
			}
		}
		m.users[user] = append([]string(nil), roles...)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("permission matrix assigns undeclared roles: %s", strings.Join(unknown, ", "))
	}

	return m, nil
}

// HasPermission reports whether any of the user's roles grants key.
// Unknown users hold no permissions.
func (m *Matrix) HasPermission(ctx context.Context, userID, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key = strings.ToLower(key)
	module, _, _ := strings.Cut(key, ".")

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, roleName := range m.users[userID] {
		grants := m.roles[roleName]
		if _, ok := grants["*"]; ok {
			return true, nil
		}
		if _, ok := grants[module+".*"]; ok {
			return true, nil
		}
		if _, ok := grants[key]; ok {
			return true, nil
		}
	}
	return false, nil
}

// AssignRoles replaces the roles held by a user
func (m *Matrix) AssignRoles(userID string, roles ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range roles {
		if _, ok := m.roles[r]; !ok {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	m.users[userID] = append([]string(nil), roles...)
	return nil
}

// Roles returns the roles held by a user
func (m *Matrix) Roles(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.users[userID]...)
}
