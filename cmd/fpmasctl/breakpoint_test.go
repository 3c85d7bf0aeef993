package main

import "testing"

func TestBreakpointCmdRegistersInspect(t *testing.T) {
	cmd := breakpointCmd()
	found := false
	for _, sub := range cmd.Commands() {
		if sub.Name() == "inspect" {
			found = true
		}
	}
	if !found {
		t.Fatalf("breakpointCmd() missing inspect subcommand")
	}
}

func TestBreakpointInspectCmdHasStoreAndRunFlags(t *testing.T) {
	cmd := breakpointInspectCmd()
	if cmd.Flags().Lookup("store") == nil {
		t.Errorf("breakpointInspectCmd() missing --store flag")
	}
	if cmd.Flags().Lookup("run") == nil {
		t.Errorf("breakpointInspectCmd() missing --run flag")
	}
}

func TestBreakpointInspectCmdRequiresStoreAndRun(t *testing.T) {
	cmd := breakpointInspectCmd()
	if err := cmd.RunE(cmd, nil); err == nil {
		t.Fatalf("breakpointInspectCmd() RunE should fail when --store and --run are unset")
	}
}
