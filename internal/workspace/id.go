package workspace

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify reduces a free-form description to a short directory-safe
// name. Empty descriptions become "project".
func Slugify(description string) string {
	s := strings.ToLower(strings.TrimSpace(description))
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 32 {
		s = s[:32]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		return "project"
	}
	return s
}

// AllocateRoot builds a fresh workspace directory name under baseDir:
// <slug>-<timestamp>-<rand>.
func AllocateRoot(baseDir, description string) string {
	buf := make([]byte, 3)
	rand.Read(buf)
	name := fmt.Sprintf("%s-%d-%s", Slugify(description), time.Now().Unix(), hex.EncodeToString(buf))
	return filepath.Join(baseDir, name)
}

// projectIDLen keeps ids short enough to paste while still unique per
// workspace path.
const projectIDLen = 16

// ProjectID derives the deterministic opaque id for a workspace path.
// The path is hashed first: truncating an encoding of the raw path
// would keep only the shared base directory, giving every workspace
// under it the same id.
func ProjectID(absRoot string) string {
	sum := sha256.Sum256([]byte(absRoot))
	enc := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
	return enc[:projectIDLen]
}
