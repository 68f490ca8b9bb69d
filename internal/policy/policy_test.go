package policy

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"otto/internal/plan"
)

func newTestGate(t *testing.T) (*Gate, string) {
	t.Helper()
	root := t.TempDir()
	return NewGate(root, []string{"ls", "cat", "echo", "python", "pytest", "rm"}), root
}

func commandAction(command string) plan.Action {
	return plan.Action{Name: "run_command", Params: map[string]any{"command": command}}
}

func pathAction(name, path string) plan.Action {
	return plan.Action{Name: name, Params: map[string]any{"path": path}}
}

func TestAuthorizePathEscape(t *testing.T) {
	gate, _ := newTestGate(t)
	for _, path := range []string{"../../etc/passwd", "/etc/passwd", "a/../../outside.txt"} {
		for _, name := range []string{"read_file", "write_file", "list_dir"} {
			d := gate.Authorize(pathAction(name, path), nil)
			if d.Allowed {
				t.Errorf("%s %q allowed, want path_escape", name, path)
				continue
			}
			if d.Reason != DenyPathEscape {
				t.Errorf("%s %q reason = %s, want path_escape", name, path, d.Reason)
			}
		}
	}
}

func TestAuthorizePathInsideWorkspace(t *testing.T) {
	gate, _ := newTestGate(t)
	for _, path := range []string{"result.txt", "sub/dir/out.json", "./notes.md"} {
		d := gate.Authorize(pathAction("write_file", path), nil)
		if !d.Allowed {
			t.Errorf("write_file %q denied: %s %s", path, d.Reason, d.Detail)
		}
	}
}

func TestAuthorizeSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks unreliable on windows")
	}
	gate, root := newTestGate(t)
	outside := t.TempDir()
	link := filepath.Join(root, "leak")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	d := gate.Authorize(pathAction("write_file", "leak/secret.txt"), nil)
	if d.Allowed || d.Reason != DenyPathEscape {
		t.Fatalf("symlink escape decision = %+v", d)
	}
}

func TestAuthorizeCommandAllowList(t *testing.T) {
	gate, _ := newTestGate(t)

	if d := gate.Authorize(commandAction("ls -la"), nil); !d.Allowed {
		t.Errorf("ls denied: %+v", d)
	}
	if d := gate.Authorize(commandAction("gcc main.c"), nil); d.Allowed || d.Reason != DenyBlockedCommand {
		t.Errorf("gcc decision = %+v", d)
	}
	// Blocked even though echo is allow-listed: sudo appears as a token.
	if d := gate.Authorize(commandAction("echo hi && sudo reboot"), nil); d.Allowed {
		t.Errorf("sudo token allowed: %+v", d)
	}
	for _, cmd := range []string{"curl http://x", "wget http://x", "scp a b", "mv a b"} {
		gate2 := NewGate(gate.Root, []string{"curl", "wget", "scp", "mv"})
		if d := gate2.Authorize(commandAction(cmd), nil); d.Allowed {
			t.Errorf("%q allowed despite blocked token", cmd)
		}
	}
}

func TestAuthorizeRmConfinement(t *testing.T) {
	gate, _ := newTestGate(t)
	if d := gate.Authorize(commandAction("rm -f old.txt"), nil); !d.Allowed {
		t.Errorf("workspace rm denied: %+v", d)
	}
	if d := gate.Authorize(commandAction("rm -rf ../sibling"), nil); d.Allowed || d.Reason != DenyPathEscape {
		t.Errorf("escaping rm decision = %+v", d)
	}
	if d := gate.Authorize(commandAction("rm -- -weird.txt"), nil); !d.Allowed {
		t.Errorf("rm -- target denied: %+v", d)
	}
}

func TestAuthorizePolicyToolSet(t *testing.T) {
	gate, _ := newTestGate(t)
	tools := ToolSet{"read_file": true}

	if d := gate.Authorize(pathAction("read_file", "a.txt"), tools); !d.Allowed {
		t.Errorf("permitted tool denied: %+v", d)
	}
	d := gate.Authorize(pathAction("write_file", "a.txt"), tools)
	if d.Allowed || d.Reason != DenyCapability {
		t.Errorf("unlisted tool decision = %+v", d)
	}
	// nil set imposes no restriction.
	if d := gate.Authorize(pathAction("write_file", "a.txt"), nil); !d.Allowed {
		t.Errorf("nil tool set denied: %+v", d)
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`echo hello world`, []string{"echo", "hello", "world"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'a b' c`, []string{"echo", "a b", "c"}},
		{`cat file\ name`, []string{"cat", "file name"}},
	}
	for _, tc := range cases {
		got, err := SplitCommand(tc.in)
		if err != nil {
			t.Errorf("SplitCommand(%q): %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("SplitCommand(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("SplitCommand(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}

	if _, err := SplitCommand(`echo "unterminated`); err == nil {
		t.Error("unterminated quote accepted")
	}
}
