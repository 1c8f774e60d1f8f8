package domain

// User is a directory entry for someone the current user can chat with.
type User struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	if u.PhoneNumber != "" {
		return u.PhoneNumber
	}
	return u.ID
}

// Identity is the signed-in user. It is supplied by session state and is
// read-only for the sync core.
type Identity struct {
	UserID string
	Name   string
	Phone  string
}

func (i Identity) User() User {
	return User{ID: i.UserID, Name: i.Name, PhoneNumber: i.Phone}
}
