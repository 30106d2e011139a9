package profile

import "time"

type User struct {
	Id   int64
	Name string
	// Email is empty when the profile does not expose one.
	Email string
	// Picture is the absolute url of the profile picture, empty if there is none.
	Picture string
	// Courses maps course id to course name.
	Courses map[int64]string
	// FirstAccess and LastAccess are zero when the profile has no login
	// activity, or when the portal reports the user never accessed the site.
	FirstAccess time.Time
	LastAccess  time.Time
}

func (u User) HasEmail() bool {
	return u.Email != ""
}

func (u User) Clone() User {
	u.Courses = cloneCourses(u.Courses)
	return u
}

func cloneCourses(courses map[int64]string) map[int64]string {
	out := make(map[int64]string, len(courses))
	for id, name := range courses {
		out[id] = name
	}
	return out
}
