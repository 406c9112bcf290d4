// Package env composes the environment handed to agent tool child processes.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers panel-configured variables on top of the OS environment.
type Env struct {
	Var Var // configured overrides (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromPairs builds an Env whose overrides come from "KEY=VALUE" entries.
// Entries without '=' or with an empty key are skipped.
func FromPairs(pairs []string) *Env {
	e := New()
	for k, v := range parsePairs(pairs) {
		e.Var[k] = v
	}
	return e
}

// FromOS caches the current process environment as the base. Later changes to
// the panel's own environment no longer reach children.
func (e *Env) FromOS() *Env {
	e.env = parsePairs(os.Environ())
	return e
}

// Merge composes the final environment: the OS env with the configured overrides on
// top. Values may reference ${VAR} of the composed map; expansion is a single pass.
// The result is sorted by key. Without FromOS the live OS environment is read on
// every call.
func (e *Env) Merge() []string {
	base := e.env
	if base == nil {
		base = parsePairs(os.Environ())
	}
	m := make(Var, len(base)+len(e.Var))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

// expand replaces ${VAR} references; unknown names and bare $VAR are left untouched.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
}

func parsePairs(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}
