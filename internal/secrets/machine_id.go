package secrets

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

const passwordSalt = "lazydb-keyring-salt-v1"

// deriveFilePassword generates a machine-specific password for the file
// backend. It is stable across runs on one machine for one user.
func deriveFilePassword() (string, error) {
	machineID, err := getMachineID()
	if err != nil {
		machineID, _ = os.Hostname()
	}

	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = fmt.Sprintf("uid-%d", os.Getuid())
	}

	hash := sha256.Sum256([]byte(machineID + username + passwordSalt))
	return base64.StdEncoding.EncodeToString(hash[:]), nil
}

// getMachineID returns a unique identifier for the current machine
func getMachineID() (string, error) {
	switch runtime.GOOS {
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if data, err := os.ReadFile(path); err == nil {
				return strings.TrimSpace(string(data)), nil
			}
		}
	case "darwin":
		if out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output(); err == nil {
			if id := parseField(string(out), "IOPlatformUUID", "="); id != "" {
				return id, nil
			}
		}
	case "windows":
		if out, err := exec.Command("wmic", "csproduct", "get", "UUID").Output(); err == nil {
			for _, line := range strings.Split(string(out), "\n") {
				if line = strings.TrimSpace(line); line != "" && line != "UUID" {
					return line, nil
				}
			}
		}
	}
	return os.Hostname()
}

// parseField finds `name <sep> "value"` in command output
func parseField(output, name, sep string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, name) {
			continue
		}
		parts := strings.SplitN(line, sep, 2)
		if len(parts) == 2 {
			return strings.Trim(strings.TrimSpace(parts[1]), `"`)
		}
	}
	return ""
}
