// Package env computes the environment a managed child process is spawned
// with: the supervisor's own environment overlaid with a program's
// per-program variables, per-program winning on conflict.
package env

import (
	"os"
	"strings"
)

// Merge returns a fresh environment slice (KEY=VALUE form) built from the
// supervisor's current OS environment with perProgram entries applied on
// top. perProgram wins on key conflicts, matching spec §6: "child process
// environment = parent environment merged with per-program env (per-program
// wins on conflict)".
func Merge(perProgram []string) []string {
	m := make(map[string]string, len(perProgram)+16)
	for _, kv := range os.Environ() {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	for _, kv := range perProgram {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}
