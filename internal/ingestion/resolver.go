package ingestion

import (
	"context"

	"recruitbase_backend/internal/candidates"
)

// CandidateDirectory is the read side of the candidate context used by
// identity resolution.
type CandidateDirectory interface {
	FindByPhoneCountry(ctx context.Context, phone, country string) (*candidates.Candidate, error)
	FindByEmail(ctx context.Context, email string) (*candidates.Candidate, error)
	FindByContact(ctx context.Context, email, phone string) (*candidates.Candidate, error)
}

// Resolution is the outcome of identity resolution for one lead.
type Resolution struct {
	Candidate *candidates.Candidate
	MatchedBy string
}

// Resolver maps a normalized lead to an existing candidate, if any.
// Strategies run in a fixed order and the first match wins: exact
// phone+country, exact email, then a containment probe over candidates'
// embedded contact histories.
//
// In strict mode a phone match and an email match pointing at different
// candidates is reported as ambiguous instead of silently preferring the
// phone match.
type Resolver struct {
	directory CandidateDirectory
	strict    bool
}

// NewResolver creates a resolver over the candidate directory.
func NewResolver(directory CandidateDirectory, strict bool) *Resolver {
	return &Resolver{directory: directory, strict: strict}
}

// Resolve runs the matching strategies. A zero Resolution means no match.
func (r *Resolver) Resolve(ctx context.Context, lead NormalizedLead) (Resolution, error) {
	var byPhone *candidates.Candidate
	if lead.Phone != nil && lead.Country != nil {
		var err error
		byPhone, err = r.directory.FindByPhoneCountry(ctx, *lead.Phone, *lead.Country)
		if err != nil {
			return Resolution{}, err
		}
	}

	if byPhone != nil && !r.strict {
		return Resolution{Candidate: byPhone, MatchedBy: candidates.MatchedByPhone}, nil
	}

	var byEmail *candidates.Candidate
	if lead.Email != nil {
		var err error
		byEmail, err = r.directory.FindByEmail(ctx, *lead.Email)
		if err != nil {
			return Resolution{}, err
		}
	}

	if r.strict && byPhone != nil && byEmail != nil && byPhone.ID != byEmail.ID {
		return Resolution{}, candidates.ErrAmbiguousIdentity
	}
	if byPhone != nil {
		return Resolution{Candidate: byPhone, MatchedBy: candidates.MatchedByPhone}, nil
	}
	if byEmail != nil {
		return Resolution{Candidate: byEmail, MatchedBy: candidates.MatchedByEmail}, nil
	}

	email, phoneNumber := "", ""
	if lead.Email != nil {
		email = *lead.Email
	}
	if lead.Phone != nil {
		phoneNumber = *lead.Phone
	}
	byContact, err := r.directory.FindByContact(ctx, email, phoneNumber)
	if err != nil {
		return Resolution{}, err
	}
	if byContact != nil {
		return Resolution{Candidate: byContact, MatchedBy: candidates.MatchedByContactEmail}, nil
	}

	return Resolution{}, nil
}
