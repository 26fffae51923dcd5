package core

import "fmt"

// Identity is the author recorded on commits, tags and commentary.
type Identity struct {
	Name  string `json:"name" msgpack:"name"`
	Email string `json:"email" msgpack:"email"`
}

// String returns the "Name <email>" form used as the commit user.
func (identity Identity) String() string {
	if identity.Email == "" {
		return identity.Name
	}
	return fmt.Sprintf("%s <%s>", identity.Name, identity.Email)
}
