// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package visibility implements the role-visibility matrix using Casbin.
// The matrix is the single source of truth for which role may observe
// which event namespace. Broadcast fan-out consults it per delivery; a
// connection may hold a subscription to a namespace outside its role's
// visibility, it just never receives events there.
package visibility

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/sokolive/soko/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// actSubscribe is the only action the matrix currently answers for.
const actSubscribe = "subscribe"

// Config holds configuration for the visibility matrix.
type Config struct {
	// ModelPath overrides the embedded Casbin model when set and the
	// file exists.
	ModelPath string

	// PolicyPath overrides the embedded policy when set and the file
	// exists. Policy is loaded once at startup; there is no runtime
	// mutation, which is what makes the decision cache safe.
	PolicyPath string
}

// Matrix answers role-visibility questions. Safe for concurrent use.
type Matrix struct {
	enforcer *casbin.SyncedEnforcer

	// Decisions are immutable after load, so cache entries never
	// expire. Only valid (role, namespace) pairs are cached; the key
	// space is bounded by the closed enums.
	mu    sync.RWMutex
	cache map[cacheKey]bool
}

type cacheKey struct {
	role models.Role
	ns   models.Namespace
}

// New creates the visibility matrix from the embedded model and policy,
// or from the override paths in cfg when provided.
func New(cfg *Config) (*Matrix, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var m model.Model
	var err error
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load visibility model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" && fileExists(cfg.PolicyPath) {
		adapter := fileadapter.NewAdapter(cfg.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create visibility enforcer: %w", err)
	}

	return &Matrix{
		enforcer: enforcer,
		cache:    make(map[cacheKey]bool),
	}, nil
}

// loadEmbeddedPolicy parses the embedded policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// Visible reports whether the role may observe the namespace. Unknown
// roles and namespaces are denied.
func (mx *Matrix) Visible(role models.Role, ns models.Namespace) bool {
	key := cacheKey{role: role, ns: ns}

	mx.mu.RLock()
	allowed, ok := mx.cache[key]
	mx.mu.RUnlock()
	if ok {
		return allowed
	}

	result, err := mx.enforcer.Enforce(role.String(), ns.String(), actSubscribe)
	if err != nil {
		// Enforcement errors are deny; they indicate a broken model,
		// not a policy decision.
		return false
	}

	if role.Valid() && ns.Valid() {
		mx.mu.Lock()
		mx.cache[key] = result
		mx.mu.Unlock()
	}

	return result
}

// EventVisible reports whether a connection with the given role and user
// id may receive the event. On top of Visible it applies the per-user
// targeting rule and the optional min-role floor.
func (mx *Matrix) EventVisible(role models.Role, userID string, e *models.Event) bool {
	if e == nil {
		return false
	}
	if !mx.Visible(role, e.Namespace) {
		return false
	}
	if e.MinRole != "" && !role.AtLeast(e.MinRole) {
		return false
	}
	if e.TargetUserID != "" && !role.Unrestricted() && userID != e.TargetUserID {
		return false
	}
	return true
}

// VisibleNamespaces returns the namespaces the role may observe, in the
// stable models.Namespaces order.
func (mx *Matrix) VisibleNamespaces(role models.Role) []models.Namespace {
	var out []models.Namespace
	for _, ns := range models.Namespaces() {
		if mx.Visible(role, ns) {
			out = append(out, ns)
		}
	}
	return out
}

// PolicyCounts returns the number of policy and grouping rules loaded.
func (mx *Matrix) PolicyCounts() (policies, groupings int) {
	//nolint:errcheck // only fails if enforcer is nil, which is a programming error
	p, _ := mx.enforcer.GetPolicy()
	//nolint:errcheck // same as above
	g, _ := mx.enforcer.GetGroupingPolicy()
	return len(p), len(g)
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
