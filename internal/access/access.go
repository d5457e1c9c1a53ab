// Package access answers whether a caller holds a permission within a company.
// Users, roles and companies are managed elsewhere; this service only asks.
package access

import (
	"context"
	"strconv"
	"strings"

	"finfare-backend/config"
)

// Permission names.
const (
	ManageDevices          = "manage_devices"
	ViewDevices            = "view_devices"
	ManageFeedingSchedules = "manage_feeding_schedules"
	ViewFeedingSchedules   = "view_feeding_schedules"
	ManageFeeding          = "manage_feeding"
	ViewWaterParameters    = "view_water_parameters"
)

// Wildcard grants every permission.
const Wildcard = "*"

// Checker decides whether userID holds permission in companyID.
type Checker interface {
	HasPermission(ctx context.Context, userID string, companyID int64, permission string) (bool, error)
}

// New returns the checker selected by cfg.
func New(cfg config.AccessConfig) Checker {
	if cfg.AllowAll {
		return AllowAll{}
	}
	return NewStatic(cfg.Grants)
}

// AllowAll grants everything to every identified caller.
type AllowAll struct{}

func (AllowAll) HasPermission(context.Context, string, int64, string) (bool, error) {
	return true, nil
}

// Static checks a fixed grant table. A grant is either a permission name,
// valid in every company, or "<company_id>:<permission>".
type Static struct {
	grants map[string]map[string]struct{}
}

func NewStatic(grants map[string][]string) *Static {
	s := &Static{grants: make(map[string]map[string]struct{}, len(grants))}
	for user, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[strings.TrimSpace(p)] = struct{}{}
		}
		s.grants[user] = set
	}
	return s
}

func (s *Static) HasPermission(_ context.Context, userID string, companyID int64, permission string) (bool, error) {
	set, ok := s.grants[userID]
	if !ok {
		return false, nil
	}
	scoped := strconv.FormatInt(companyID, 10) + ":"
	for _, candidate := range []string{Wildcard, permission, scoped + Wildcard, scoped + permission} {
		if _, ok := set[candidate]; ok {
			return true, nil
		}
	}
	return false, nil
}
