package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"

	"focus-timer/internal/middleware"
)

func TestTokenCmd(t *testing.T) {
	userID := uuid.New()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", userID.String(), "--secret", "cli-secret"})

	if err := root.Execute(); err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	parsed, err := middleware.NewJWTAuth("cli-secret").ParseUserID(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if parsed != userID {
		t.Fatalf("expected user %s, got %s", userID, parsed)
	}
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error without a secret")
	}
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"start", "pause", "resume", "stop", "discard", "status", "history", "today", "watch", "token"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
