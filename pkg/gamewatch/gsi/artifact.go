package gsi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gamewatch/gamewatch-go/internal/safefile"
)

// Placeholders substituted by Artifact.Write.
const (
	PortPlaceholder  = "${PORT}"
	TokenPlaceholder = "${TOKEN}"
)

const maxArtifactSize = 64 << 10

// DefaultCSGOTemplate is a gamestate_integration_*.cfg file pointing the game
// at the csgo ingress route.
const DefaultCSGOTemplate = `"gamewatch"
{
	"uri"		"http://127.0.0.1:${PORT}/csgo/gsi"
	"timeout"	"5.0"
	"buffer"	"0.1"
	"throttle"	"0.5"
	"heartbeat"	"10.0"
	"auth"
	{
		"token"	"${TOKEN}"
	}
	"data"
	{
		"provider"		"1"
		"map"			"1"
		"round"			"1"
		"player_id"		"1"
		"player_state"		"1"
		"player_weapons"	"1"
		"player_match_stats"	"1"
	}
}
`

// ErrNoPublishedPort is returned by PublishedPort when the file holds no port.
var ErrNoPublishedPort = errors.New("no published port in config artifact")

// Artifact is the config file telling the game where to send snapshots.
type Artifact struct {
	Path     string
	Template string
}

// PublishedPort returns the port a previous run wrote into the file.
func (a *Artifact) PublishedPort() (int, error) {
	data, err := safefile.ReadRegular(a.Path, maxArtifactSize)
	if err != nil {
		return 0, err
	}
	content := string(data)
	for _, line := range strings.Split(a.Template, "\n") {
		if !strings.Contains(line, PortPlaceholder) {
			continue
		}
		re, err := portPattern(strings.TrimSpace(line))
		if err != nil {
			return 0, err
		}
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		port, err := strconv.Atoi(m[1])
		if err != nil || port < 1 || port > 65535 {
			return 0, fmt.Errorf("%w: invalid port %q", ErrNoPublishedPort, m[1])
		}
		return port, nil
	}
	return 0, ErrNoPublishedPort
}

func portPattern(line string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(line)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta(PortPlaceholder), `(\d{1,5})`)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta(TokenPlaceholder), `[^"\n]*`)
	// Tabs and spaces are interchangeable in the game's format.
	quoted = regexp.MustCompile(`[\t ]+`).ReplaceAllString(quoted, `[\t ]+`)
	return regexp.Compile(quoted)
}

// Render returns the template with port and token substituted.
func (a *Artifact) Render(port int, token string) string {
	out := strings.ReplaceAll(a.Template, PortPlaceholder, strconv.Itoa(port))
	return strings.ReplaceAll(out, TokenPlaceholder, token)
}

// Write renders the template and replaces the file atomically.
func (a *Artifact) Write(port int, token string) error {
	dir := filepath.Dir(a.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(a.Path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(a.Render(port, token)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.Path); err != nil {
		return fmt.Errorf("replacing artifact: %w", err)
	}
	return nil
}
