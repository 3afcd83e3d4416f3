package main

import (
	"context"
	"net/http"

	"github.com/sushihentaime/teamblog/internal/userservice"
)

type contextKey string

const userContextKey = contextKey("user")

func (app *application) createUserContext(r *http.Request, user *userservice.User) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, user)
	return r.WithContext(ctx)
}

// getUserContext never returns nil; requests that skipped authenticate are
// treated as anonymous.
func (app *application) getUserContext(r *http.Request) *userservice.User {
	user, ok := r.Context().Value(userContextKey).(*userservice.User)
	if !ok {
		return &userservice.AnonymousUser
	}
	return user
}

// actorID is the id the access policy sees for this request, "" when
// anonymous.
func (app *application) actorID(r *http.Request) string {
	return app.getUserContext(r).ActorID()
}
