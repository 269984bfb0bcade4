package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Every rejected action carries one of these kinds so the HTTP layer can
// pick a status code and the room layer can emit an error event without
// inspecting message strings.
type errorKind int

const (
	kindAuthorization errorKind = iota // missing/invalid/expired token, gateway unreachable
	kindForbidden                      // valid token, but not the owning host
	kindNotFound                       // unknown PIN or player
	kindStateConflict                  // action invalid for the current lifecycle state
	kindValidation                     // malformed payload or field values
)

type gameError struct {
	kind    errorKind
	message string
}

func (e *gameError) Error() string {
	return e.message
}

func errAuthorization(message string) error {
	return &gameError{kind: kindAuthorization, message: message}
}

func errForbidden(message string) error {
	return &gameError{kind: kindForbidden, message: message}
}

func errNotFound(message string) error {
	return &gameError{kind: kindNotFound, message: message}
}

func errStateConflict(message string) error {
	return &gameError{kind: kindStateConflict, message: message}
}

func errValidation(message string) error {
	return &gameError{kind: kindValidation, message: message}
}

// httpStatus maps an error to its REST status code. Unknown errors are
// treated as server faults.
func httpStatus(err error) int {
	var ge *gameError
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError
	}

	switch ge.kind {
	case kindAuthorization:
		return http.StatusUnauthorized
	case kindForbidden:
		return http.StatusForbidden
	case kindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
