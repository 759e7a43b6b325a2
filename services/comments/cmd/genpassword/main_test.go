package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/example/kaede/services/comments/internal/credential"
)

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestGenpassword_Flag(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--password", "  s3cret  "})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	digest := credential.ClientDigest("s3cret")
	if !strings.Contains(out.String(), digest) {
		t.Fatalf("expected digest of trimmed password in output:\n%s", out.String())
	}
	if !(credential.Hasher{}).Verify(lastLine(out.String()), digest) {
		t.Fatalf("expected stored credential to verify against the digest:\n%s", out.String())
	}
	if !credential.NewAdminMatcher("s3cret").Match(digest) {
		t.Fatal("expected the printed digest to pass the admin check")
	}
}

func TestGenpassword_Prompt(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader("hunter2\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Please enter your new admin password: ") {
		t.Fatalf("expected prompt, got %q", out.String())
	}
	if !strings.Contains(out.String(), credential.ClientDigest("hunter2")) {
		t.Fatalf("expected digest in output:\n%s", out.String())
	}
}

func TestGenpassword_PromptWithoutNewline(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader("hunter2"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestGenpassword_EmptyRejected(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-p", "   "})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for blank password")
	}
}
