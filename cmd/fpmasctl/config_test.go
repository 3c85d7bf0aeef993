package main

import "testing"

func TestConfigCmdRegistersValidate(t *testing.T) {
	cmd := configCmd()
	found := false
	for _, sub := range cmd.Commands() {
		if sub.Name() == "validate" {
			found = true
		}
	}
	if !found {
		t.Fatalf("configCmd() missing validate subcommand")
	}
}

func TestConfigValidateCmdRequiresExactlyOneArg(t *testing.T) {
	cmd := configValidateCmd()
	if err := cmd.Args(cmd, nil); err == nil {
		t.Errorf("configValidateCmd() should reject zero args")
	}
	if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
		t.Errorf("configValidateCmd() should reject more than one arg")
	}
	if err := cmd.Args(cmd, []string{"a"}); err != nil {
		t.Errorf("configValidateCmd() should accept exactly one arg, got %v", err)
	}
}
