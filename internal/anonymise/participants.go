// Package anonymise replaces personal identifiers: survey emails become
// participant IDs, free text is redacted and split into utterances.
package anonymise

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"journaling-go/internal/frame"
	"journaling-go/internal/models"
	"journaling-go/internal/utils"

	"go.uber.org/zap"
)

// ReadJSONMap loads a flat string map. A missing file reports os.ErrNotExist.
func ReadJSONMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return out, nil
}

// WriteJSONMap writes a flat string map with indentation.
func WriteJSONMap(path string, m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EmailIndex maps normalised roster emails to participant IDs.
func EmailIndex(roster *frame.Frame) map[string]string {
	out := map[string]string{}
	for _, r := range roster.Rows() {
		email := utils.NormaliseEmail(r.Get(models.ColEmail))
		if email == "" || r.Missing(models.ColParticipantID) {
			continue
		}
		if _, seen := out[email]; !seen {
			out[email] = r.Get(models.ColParticipantID)
		}
	}
	return out
}

// ResolveEmails adds a ParticipantID column resolved from Email. Addresses
// missing from the roster are retried through the alias map, which may
// point from a survey address to a roster address or the other way round.
func ResolveEmails(f *frame.Frame, index, aliases map[string]string, log *zap.Logger) *frame.Frame {
	norm := make(map[string]string, len(aliases))
	for k, v := range aliases {
		norm[utils.NormaliseEmail(k)] = utils.NormaliseEmail(v)
	}

	var viaAlias, unresolved int
	out := f.WithColumn(models.ColParticipantID, func(r frame.Row) string {
		email := utils.NormaliseEmail(r.Get(models.ColEmail))
		if email == "" {
			return ""
		}
		if pid, ok := index[email]; ok {
			return pid
		}
		if pid := resolveAlias(email, norm, index); pid != "" {
			viaAlias++
			return pid
		}
		unresolved++
		return ""
	})
	log.Info("Emails resolved to participant IDs",
		zap.Int("rows", f.Len()),
		zap.Int("via_alias", viaAlias),
		zap.Int("unresolved", unresolved))
	return out
}

func resolveAlias(email string, aliases, index map[string]string) string {
	if target, ok := aliases[email]; ok {
		if pid, ok := index[target]; ok {
			return pid
		}
	}
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if aliases[k] == email {
			if pid, ok := index[k]; ok {
				return pid
			}
		}
	}
	return ""
}

// LoadAliases reads the alias file; a missing file yields no aliases.
func LoadAliases(path string) (map[string]string, error) {
	m, err := ReadJSONMap(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	return m, err
}

// OutcomesByParticipant re-keys an email -> outcome map by participant ID.
// Emails without a participant are dropped and counted.
func OutcomesByParticipant(byEmail, index map[string]string) (map[string]string, int) {
	out := make(map[string]string, len(byEmail))
	dropped := 0
	for email, outcome := range byEmail {
		pid, ok := index[utils.NormaliseEmail(email)]
		if !ok {
			dropped++
			continue
		}
		out[pid] = outcome
	}
	return out, dropped
}

// StudyGroups maps participant IDs to their study group.
func StudyGroups(roster *frame.Frame) map[string]string {
	out := map[string]string{}
	for pid, group := range roster.Lookup(models.ColParticipantID, models.ColStudyGroup) {
		if group != "" {
			out[pid] = group
		}
	}
	return out
}
