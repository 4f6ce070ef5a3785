package util

import "regexp"

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
