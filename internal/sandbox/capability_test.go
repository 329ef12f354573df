package sandbox

import "testing"

func TestCheckNilCheckerGrantsEverything(t *testing.T) {
	if got := Check(nil, FileReadCap(ExactPattern("/tmp/a"))); got != Granted {
		t.Errorf("Check(nil, ...) = %v, want Granted", got)
	}
}

func TestGrantsExactPathMatch(t *testing.T) {
	g := NewGrants().AllowFileRead(ExactPattern("/tmp/a"))
	if got := g.Check(FileReadCap(ExactPattern("/tmp/a"))); got != Granted {
		t.Errorf("matching exact path = %v, want Granted", got)
	}
	if got := g.Check(FileReadCap(ExactPattern("/tmp/b"))); got != Denied {
		t.Errorf("non-matching exact path = %v, want Denied", got)
	}
}

func TestGrantsPrefixPathMatch(t *testing.T) {
	g := NewGrants().AllowFileWrite(PrefixPattern("/tmp/"))
	if got := g.Check(FileWriteCap(ExactPattern("/tmp/sub/file.txt"))); got != Granted {
		t.Errorf("prefix match = %v, want Granted", got)
	}
	if got := g.Check(FileWriteCap(ExactPattern("/etc/passwd"))); got != Denied {
		t.Errorf("non-matching prefix = %v, want Denied", got)
	}
}

func TestGrantsAnyPattern(t *testing.T) {
	g := NewGrants().AllowNetwork(AnyPattern())
	if got := g.Check(NetworkCap(ExactPattern("anything.example.com"))); got != Granted {
		t.Errorf("any pattern = %v, want Granted", got)
	}
}

func TestGrantsSubprocessAllOrNothing(t *testing.T) {
	g := NewGrants()
	if got := g.Check(SubprocessCap()); got != Denied {
		t.Errorf("ungranted subprocess = %v, want Denied", got)
	}
	g.AllowSubprocess()
	if got := g.Check(SubprocessCap()); got != Granted {
		t.Errorf("granted subprocess = %v, want Granted", got)
	}
}

func TestGrantsPromptWithoutHookReturnsPrompt(t *testing.T) {
	g := NewGrants()
	g.RequirePrompt(CapEnv, ExactPattern("SECRET"))
	if got := g.Check(EnvCap(ExactPattern("SECRET"))); got != Prompt {
		t.Errorf("prompt rule without hook = %v, want Prompt", got)
	}
}

func TestGrantsPromptWithHookApproves(t *testing.T) {
	g := NewGrants()
	g.RequirePrompt(CapEnv, ExactPattern("SECRET"))
	g.OnPrompt(func(Capability) bool { return true })
	if got := g.Check(EnvCap(ExactPattern("SECRET"))); got != Granted {
		t.Errorf("prompt rule with approving hook = %v, want Granted", got)
	}
}

func TestGrantsToNetworkNeed(t *testing.T) {
	g := NewGrants().AllowNetwork(ExactPattern("localhost"))
	if got := g.ToNetworkNeed(); got != NetworkLocal {
		t.Errorf("ToNetworkNeed() = %v, want NetworkLocal", got)
	}

	g2 := NewGrants().AllowNetwork(AnyPattern())
	if got := g2.ToNetworkNeed(); got != NetworkFull {
		t.Errorf("ToNetworkNeed() with AnyPattern = %v, want NetworkFull", got)
	}
}

func TestCapKindFlagNames(t *testing.T) {
	cases := map[CapKind]string{
		CapFileRead:   "--allow-read",
		CapFileWrite:  "--allow-write",
		CapNetwork:    "--allow-net",
		CapEnv:        "--allow-env",
		CapSubprocess: "--allow-run",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", kind, got, want)
		}
	}
}
