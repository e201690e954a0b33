package auth

import (
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// ErrForbidden is returned when the actor may not perform the action on
// the resource.
var ErrForbidden = errors.New("you are not allowed to perform this action")

type Action string

const (
	ActAppointmentStatus Action = "appointment:update_status"
	ActMeetingLink       Action = "appointment:meeting_link"
	ActConsultationNotes Action = "appointment:notes"
	ActBookAppointment   Action = "appointment:book"
	ActCancelAppointment Action = "appointment:cancel"
	ActViewAppointment   Action = "appointment:view"
	ActManageSchedule    Action = "schedule:manage"
	ActSendMessage       Action = "message:send"
	ActReadMessages      Action = "message:read"
	ActPrescribe         Action = "prescription:create"
	ActReviewDoctor      Action = "doctor:review"
	ActManageUsers       Action = "user:manage"
	ActManageCatalog     Action = "catalog:manage"
	ActManageOrders      Action = "order:manage"
	ActPlaceOrder        Action = "order:place"
	ActViewReports       Action = "report:view"
)

// Resource identifies who owns the row being acted on. Zero fields are not
// checked.
type Resource struct {
	DoctorID  int64
	PatientID int64
}

// Policy decides whether an actor may perform an action on a resource.
// Every mutating service operation consults it.
type Policy interface {
	Authorize(actor Actor, action Action, res Resource) error
}

const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// DefaultGrants is the role to action table.
var DefaultGrants = map[string][]Action{
	RoleDoctor: {
		ActAppointmentStatus, ActMeetingLink, ActConsultationNotes, ActViewAppointment,
		ActManageSchedule, ActSendMessage, ActReadMessages, ActPrescribe,
	},
	RolePatient: {
		ActBookAppointment, ActCancelAppointment, ActViewAppointment,
		ActSendMessage, ActReadMessages, ActPlaceOrder,
	},
	RoleAdmin: {
		ActReviewDoctor, ActManageUsers, ActManageCatalog, ActManageOrders, ActViewReports,
		ActViewAppointment,
	},
}

// CasbinPolicy checks the role grant with casbin and then row ownership:
// doctors must own DoctorID, patients must be PatientID. Admins skip the
// ownership step.
type CasbinPolicy struct {
	enforcer *casbin.Enforcer
}

func NewCasbinPolicy(grants map[string][]Action) (*CasbinPolicy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("parse policy model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	var rules [][]string
	for role, actions := range grants {
		for _, a := range actions {
			rules = append(rules, []string{role, string(a)})
		}
	}
	if len(rules) > 0 {
		if _, err := e.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("load policy rules: %w", err)
		}
	}
	return &CasbinPolicy{enforcer: e}, nil
}

func (p *CasbinPolicy) Authorize(actor Actor, action Action, res Resource) error {
	if actor.UserID == 0 {
		return ErrForbidden
	}
	ok, err := p.enforcer.Enforce(actor.Role, string(action))
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	switch actor.Role {
	case RoleDoctor:
		if res.DoctorID != 0 && res.DoctorID != actor.DoctorID {
			return ErrForbidden
		}
		if res.DoctorID == 0 && res.PatientID != 0 {
			// A doctor acting on patient-owned data needs a doctor owner too.
			return ErrForbidden
		}
	case RolePatient:
		if res.PatientID != 0 && res.PatientID != actor.UserID {
			return ErrForbidden
		}
		if res.PatientID == 0 && res.DoctorID != 0 {
			return ErrForbidden
		}
	}
	return nil
}
