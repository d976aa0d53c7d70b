package exam

import "github.com/trezcool/academia/core/user"

// Authorizer decides who may manage an exam.
type Authorizer interface {
	RequireCreator(actor user.User, e Exam) error
}

// CreatorAuthorizer lets the creator of an exam, or any admin, manage it.
type CreatorAuthorizer struct{}

var _ Authorizer = CreatorAuthorizer{}

func (CreatorAuthorizer) RequireCreator(actor user.User, e Exam) error {
	if actor.IsZero() {
		return ErrForbidden
	}
	if actor.ID == e.CreatorID || actor.IsPrivileged() {
		return nil
	}
	return ErrForbidden
}
