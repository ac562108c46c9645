package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tollkeep/tollkeep/internal/auth"
	"github.com/tollkeep/tollkeep/internal/tui/tokenmgr"
	"gopkg.in/yaml.v3"
)

type tokenCreateJSONOutput struct {
	Status  string   `json:"status"`
	Token   string   `json:"token"`
	Scopes  []string `json:"scopes"`
	EnvVar  string   `json:"env_var,omitempty"`
	Snippet string   `json:"snippet"`
}

type tokenListEntry struct {
	Token  string   `json:"token"`
	Scopes []string `json:"scopes"`
}

func runTokenCreate(args []string) int {
	var name, scopesArg string
	var pick, useEnv, jsonOut bool

	fs := flag.NewFlagSet("token create", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "Token name")
	fs.StringVar(&scopesArg, "scopes", "", "Comma-separated scopes")
	fs.BoolVar(&pick, "pick", false, "Choose scopes interactively")
	fs.BoolVar(&useEnv, "env", false, "Reference the token via ${VAR} in the snippet")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		return 1
	}
	if scopesArg == "" && !pick {
		fmt.Fprintln(os.Stderr, "Error: one of --scopes or --pick is required")
		return 1
	}
	if scopesArg != "" && pick {
		fmt.Fprintln(os.Stderr, "Error: use only one of --scopes or --pick")
		return 1
	}

	var scopes []string
	if pick {
		picked, err := tokenmgr.Pick()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scope picker error: %v\n", err)
			return 1
		}
		if len(picked) == 0 {
			fmt.Fprintln(os.Stderr, "No scopes selected.")
			return 1
		}
		scopes = picked
	} else {
		parsed, err := parseCSVScopes(scopesArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid scopes: %v\n", err)
			return 1
		}
		scopes = parsed
	}

	tokenKey, err := generateSecureToken(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		return 1
	}

	envVar := tokenEnvVarName(name)
	tokenValue := tokenKey
	if useEnv {
		tokenValue = fmt.Sprintf("${%s}", envVar)
	}

	snippet, err := renderTokenSnippet(tokenValue, scopes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render snippet: %v\n", err)
		return 1
	}

	if jsonOut {
		out := tokenCreateJSONOutput{
			Status:  "success",
			Token:   tokenKey,
			Scopes:  scopes,
			Snippet: snippet,
		}
		if useEnv {
			out.EnvVar = envVar
		}
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
		return 0
	}

	fmt.Printf("Token key: %s\n\n", tokenKey)
	fmt.Printf("Add to config.yaml:\n\n%s\n", indentLines(snippet, "  "))
	if useEnv {
		fmt.Printf("Set environment variable:\n  export %s=\"%s\"\n\n", envVar, tokenKey)
	}
	fmt.Println("Then re-authorize the config:")
	fmt.Println("  tollkeep config lock")
	return 0
}

func runTokenList(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("token list", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	entries := make([]tokenListEntry, 0, len(cfg.API.Auth.Tokens))
	for _, tok := range cfg.API.Auth.Tokens {
		entries = append(entries, tokenListEntry{
			Token:  maskToken(tok.Token),
			Scopes: tok.Scopes,
		})
	}

	if jsonOut {
		out, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	fmt.Printf("Tokens in %s:\n", cfg.Source)
	if len(entries) == 0 {
		fmt.Println("  (none)")
	}
	for i, entry := range entries {
		fmt.Printf("\n  %d. token: %s\n", i+1, entry.Token)
		if len(entry.Scopes) > 0 {
			fmt.Printf("     scopes: %s\n", strings.Join(entry.Scopes, ", "))
		} else {
			fmt.Printf("     scopes: (none, token is unusable)\n")
		}
	}
	if cfg.API.Auth.APIKey != "" {
		fmt.Println("\nLegacy api_key: configured (admin access)")
	}
	return 0
}

func parseCSVScopes(raw string) ([]string, error) {
	seen := make(map[string]bool)
	var scopes []string
	for _, part := range strings.Split(raw, ",") {
		scope := strings.TrimSpace(part)
		if scope == "" || seen[scope] {
			continue
		}
		if !auth.KnownScope(scope) {
			return nil, fmt.Errorf("unknown scope %q (known: %s)", scope, strings.Join(auth.KnownScopes, ", "))
		}
		seen[scope] = true
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("no scopes provided")
	}
	return scopes, nil
}

func renderTokenSnippet(tokenValue string, scopes []string) (string, error) {
	snippet := map[string]any{
		"api": map[string]any{
			"auth": map[string]any{
				"tokens": []map[string]any{
					{"token": tokenValue, "scopes": scopes},
				},
			},
		},
	}
	out, err := yaml.Marshal(snippet)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func indentLines(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

// maskToken keeps enough of a token to identify it and nothing more.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:8] + "…"
}

func tokenEnvVarName(name string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(name) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	result := strings.Trim(b.String(), "_")
	if result == "" {
		result = "TOLLKEEP_TOKEN"
	}
	if !strings.HasSuffix(result, "_TOKEN") {
		result += "_TOKEN"
	}
	return result
}

func generateSecureToken(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
