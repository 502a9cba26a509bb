package auth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/pkg/logger"
)

// Department scopes passed to the enforcer.
const (
	ScopeOwn         = "own"
	ScopeControlling = "controlling"
	ScopeOther       = "other"
)

// CasbinAuthorizer answers capability questions from a casbin model and policy.
// Every role of the actor is tried; one allow is enough.
type CasbinAuthorizer struct {
	enforcer *casbin.Enforcer
	mu       sync.RWMutex
}

// NewCasbinAuthorizer loads the model and the CSV policy from disk.
func NewCasbinAuthorizer(modelPath, policyPath string) (*CasbinAuthorizer, error) {
	enf, err := casbin.NewEnforcer(modelPath, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if err := enf.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: failed to load policies: %w", err)
	}
	return &CasbinAuthorizer{enforcer: enf}, nil
}

// Scope classifies the entity relative to the actor's departments.
func Scope(actor models.ActorContext, entity models.Entity) string {
	switch {
	case actor.ManagesDepartment(entity.OwnerDepartmentID()):
		return ScopeOwn
	case actor.ManagesDepartment(entity.ControllingDepartmentID()):
		return ScopeControlling
	}
	return ScopeOther
}

// CanActOn implements services.Authorizer.
func (a *CasbinAuthorizer) CanActOn(actor models.ActorContext, entity models.Entity, right models.Right) bool {
	if entity == nil {
		return false
	}
	scope := Scope(actor, entity)

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, role := range actor.Roles {
		sub := role
		if !strings.HasPrefix(sub, "role:") {
			sub = "role:" + sub
		}
		ok, err := a.enforcer.Enforce(sub, scope, entity.EntityType(), string(right))
		if err != nil {
			logger.Error().Err(err).Str("role", sub).Str("right", string(right)).Msg("authz: enforce failed")
			return false
		}
		if ok {
			return true
		}
	}
	logger.Debug().Int64("managerID", actor.ManagerID).Str("entity", entity.EntityType()).
		Int64("entityID", entity.EntityID()).Str("scope", scope).Str("right", string(right)).Msg("authz denied")
	return false
}

// ReloadPolicy re-reads the policy file.
func (a *CasbinAuthorizer) ReloadPolicy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("authz: reload policy failed: %w", err)
	}
	return nil
}
