// mgcheck validates a modelgate configuration file before deployment:
// structural checks beyond what the gateway enforces at startup, reported as
// a lint-style list of violations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ssabihuddin/modelgate/internal/infra/config"
)

type violation struct {
	Code    string
	Message string
}

func main() {
	cfgPath := flag.String("config", "modelgate.json", "Path to the configuration file")
	flag.Parse()

	store, err := config.Open(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR loading config: %v\n", err)
		os.Exit(1)
	}

	cfg := store.Snapshot()
	violations := check(cfg)

	fmt.Printf("=== modelgate config report ===\n")
	fmt.Printf("Models: %d\n", len(cfg.Model))
	fmt.Printf("Violations: %d\n\n", len(violations))
	for _, v := range violations {
		fmt.Printf("[%s] %s\n", v.Code, v.Message)
	}
	if len(violations) > 0 {
		fmt.Printf("\nFAILED: %d violations found\n", len(violations))
		os.Exit(1)
	}
	fmt.Println("\nPASSED: configuration is deployable")
}

// check runs the lint rules over an already-validated config.
func check(cfg config.Config) []violation {
	var out []violation

	type addr struct {
		host string
		port int
	}
	seen := make(map[addr]string)

	for _, m := range cfg.Model {
		if m.Host == "" {
			out = append(out, violation{"NO-HOST", fmt.Sprintf("model %q has no host", m.Name)})
		}
		if m.Port <= 0 || m.Port > 65535 {
			out = append(out, violation{"BAD-PORT", fmt.Sprintf("model %q has invalid port %d", m.Name, m.Port)})
		}

		switch m.Auth {
		case config.AuthNone, config.AuthAPIKey, config.AuthSSOKey:
		default:
			out = append(out, violation{"BAD-AUTH", fmt.Sprintf("model %q has unknown auth scheme %q", m.Name, m.Auth)})
		}
		if m.Auth != config.AuthNone && m.Key == "" {
			out = append(out, violation{"NO-KEY", fmt.Sprintf("model %q uses %s auth but has no key", m.Name, m.Auth)})
		}

		if m.File != "" {
			if _, err := os.Stat(m.File); os.IsNotExist(err) {
				out = append(out, violation{"NO-FILE", fmt.Sprintf("model %q: file %s does not exist", m.Name, m.File)})
			}
			a := addr{m.Host, m.Port}
			if other, dup := seen[a]; dup {
				out = append(out, violation{"PORT-CLASH", fmt.Sprintf("models %q and %q share local address %s:%d", other, m.Name, m.Host, m.Port)})
			}
			seen[a] = m.Name

			if m.Host == cfg.API.Host && m.Port == cfg.API.Port {
				out = append(out, violation{"PORT-CLASH", fmt.Sprintf("model %q shares the gateway's own address %s:%d", m.Name, m.Host, m.Port)})
			}
		}
	}

	return out
}
