package model

import "strings"

// UserProfile is the signed-in user's account profile.
type UserProfile struct {
	FirstName string `json:"fname"`
	LastName  string `json:"lname"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	Thumbnail string `json:"thumbnail"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
	Bio       string `json:"bio"`
	Country   string `json:"country"`
	City      string `json:"city"`
}

// SplitName fills FirstName and LastName from a full name: the first word is
// the first name and the rest is the last name.
func (p *UserProfile) SplitName(full string) {
	p.FullName = strings.TrimSpace(full)
	first, last, _ := strings.Cut(p.FullName, " ")
	p.FirstName = first
	p.LastName = strings.TrimSpace(last)
}
