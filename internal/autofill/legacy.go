package autofill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vault-cli/vaultguard/internal/domain"
)

// LegacyFile is the file-based snapshot format written by older releases.
const LegacyFile = "autofill-credentials.legacy.json"

type legacySnapshot struct {
	Identifier string  `json:"identifier"`
	Title      string  `json:"title"`
	User       string  `json:"user"`
	Password   string  `json:"password"`
	Domain     *string `json:"domain"`
	URL        *string `json:"url"`
	Modified   int64   `json:"modified"`
}

// readLegacy parses the legacy file at path. A missing file yields nil and
// no error. Records without an identifier are dropped; a repeated
// identifier keeps its last record.
func readLegacy(path string) ([]domain.AutoFillSnapshot, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy snapshots: %w", err)
	}

	var records []legacySnapshot
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse legacy snapshots: %w", err)
	}

	index := make(map[string]int, len(records))
	snapshots := make([]domain.AutoFillSnapshot, 0, len(records))
	for _, rec := range records {
		id := strings.TrimSpace(rec.Identifier)
		if id == "" {
			continue
		}

		s := domain.AutoFillSnapshot{
			UUID:      id,
			Title:     rec.Title,
			Username:  rec.User,
			Password:  rec.Password,
			Domain:    rec.Domain,
			URL:       rec.URL,
			UpdatedAt: time.Unix(rec.Modified, 0).UTC(),
		}

		if i, seen := index[id]; seen {
			snapshots[i] = s
			continue
		}
		index[id] = len(snapshots)
		snapshots = append(snapshots, s)
	}

	return snapshots, nil
}
