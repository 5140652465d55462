package model

// User identifies an authenticated caller. Accounts themselves live in the
// external auth system; we only ever see the JWT claims.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
