package cmd

import (
	"strings"
	"testing"
)

func TestReadCredentialLines(t *testing.T) {
	email, password, err := readCredentialLines(strings.NewReader("me@example.com\nhunter2\n"))
	if err != nil {
		t.Fatalf("readCredentialLines: %v", err)
	}
	if email != "me@example.com" || password != "hunter2" {
		t.Fatalf("got %q / %q", email, password)
	}
}

func TestReadCredentialLinesTrimsEmailOnly(t *testing.T) {
	email, password, err := readCredentialLines(strings.NewReader("  me@example.com \n  pass with spaces \n"))
	if err != nil {
		t.Fatalf("readCredentialLines: %v", err)
	}
	if email != "me@example.com" {
		t.Fatalf("email not trimmed: %q", email)
	}
	if password != "  pass with spaces " {
		t.Fatalf("password altered: %q", password)
	}
}

func TestReadCredentialLinesMissingPassword(t *testing.T) {
	_, _, err := readCredentialLines(strings.NewReader("me@example.com\n"))
	if err == nil {
		t.Fatal("expected an error for a single line")
	}
}

func TestReadCredentialLinesEmptyInput(t *testing.T) {
	if _, _, err := readCredentialLines(strings.NewReader("")); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestRequireValue(t *testing.T) {
	validate := requireValue("email")
	if err := validate("  "); err == nil {
		t.Fatal("blank value should fail validation")
	}
	if err := validate("me@example.com"); err != nil {
		t.Fatalf("valid value rejected: %v", err)
	}
}
