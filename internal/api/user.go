package api

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// User is the profile of the signed-in MapGrid account.
type User struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
}

// ParseUser decodes the "current user" response body. The platform wraps
// the record in a "data" envelope; older deployments return it bare, so
// both shapes are accepted.
func ParseUser(raw []byte) (*User, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("user response is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if data := root.Get("data"); data.Exists() {
		root = data
	}
	user := &User{
		ID:        root.Get("id").String(),
		Name:      root.Get("name").String(),
		Email:     root.Get("email").String(),
		AvatarURL: root.Get("avatar_url").String(),
	}
	if user.ID == "" && user.Email == "" {
		return nil, fmt.Errorf("user response has no id or email")
	}
	return user, nil
}
