package model

import (
	"strconv"
	"strings"
)

// NoFailure is the failure text reported by a passing run.
const NoFailure = "no fail"

// FormatExitMessage renders the program message a test harness hands back
// when the traced program exits: "<successful>;<failureMessage>".
func FormatExitMessage(success bool, failure string) string {
	if failure == "" {
		failure = NoFailure
	}
	return strconv.FormatBool(success) + ";" + failure
}

// ParseExitMessage splits a message produced by FormatExitMessage. Messages
// that do not follow the format are returned as the failure text with
// ok=false.
func ParseExitMessage(msg string) (success bool, failure string, ok bool) {
	head, tail, found := strings.Cut(msg, ";")
	if !found {
		return false, msg, false
	}
	success, err := strconv.ParseBool(head)
	if err != nil {
		return false, msg, false
	}
	return success, tail, true
}
