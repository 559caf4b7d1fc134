package app

import (
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{[]string{"serve"}, CommandServe},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"grant-admin", "root@example.com"}, CommandGrantAdmin},
		{[]string{"unknown"}, CommandServe},
		{[]string{"migrate", "--flag", "value"}, CommandMigrate},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
