package gatewaytools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// denyPatterns blocks the Bash tool's worst-case command shapes before
// they ever reach a subprocess: destructive file ops, exfiltration,
// reverse shells, privilege escalation, and the usual filter-bypass
// tricks. This is defense in depth, not a sandbox substitute — the role
// system and any container isolation around the agent process still
// apply on top of it.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\bmkfs|diskpart\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`/dev/tcp/`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\b(mount|umount)\b`),
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bBASH_ENV\s*=`),
	regexp.MustCompile(`/var/run/docker\.sock`),
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`\b(killall|pkill)\b`),
	regexp.MustCompile(`\bkill\s+-9\s`),
	regexp.MustCompile(`^\s*env\s*$`),
	regexp.MustCompile(`\bprintenv\b`),
	regexp.MustCompile(`^\s*(set|export\s+-p|declare\s+-x)\s*($|\|)`),
	regexp.MustCompile(`\bsed\b.*['"]/e\b`),
	regexp.MustCompile(`\bgit\b.*(--upload-pack|--receive-pack|--exec)=`),
}

func isDangerousCommand(command string) (string, bool) {
	for _, p := range denyPatterns {
		if p.MatchString(command) {
			return p.String(), true
		}
	}
	return "", false
}

// HostShell runs Bash commands directly on the host via os/exec, subject
// to denyPatterns and a hard timeout.
type HostShell struct {
	WorkingDir string
	Timeout    time.Duration
}

// NewHostShell builds a HostShell with a default 60s timeout.
func NewHostShell(workingDir string) *HostShell {
	return &HostShell{WorkingDir: workingDir, Timeout: 60 * time.Second}
}

func (s *HostShell) Run(ctx context.Context, command string) (string, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = s.WorkingDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("command failed: %w", err)
	}
	return out.String(), nil
}
