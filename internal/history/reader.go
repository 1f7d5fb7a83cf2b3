package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// sessionName matches history directory names and uid path parameters.
// Anything else (including path traversal attempts) reads as not found.
var sessionName = regexp.MustCompile(`^\d+$`)

// Reader serves stored sessions back to the history API.
type Reader struct {
	root string
}

func NewReader(root string) *Reader {
	return &Reader{root: root}
}

// List returns the stored session ids in ascending start order.
func (r *Reader) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history root: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() && sessionName.MatchString(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.ParseInt(out[i], 10, 64)
		b, _ := strconv.ParseInt(out[j], 10, 64)
		return a < b
	})
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Summary returns the raw summary.json document of one session.
func (r *Reader) Summary(ts string) (json.RawMessage, error) {
	return r.readDoc(ts, "summary.json")
}

// AllUserData returns the raw allUserData.json document of one session.
func (r *Reader) AllUserData(ts string) (json.RawMessage, error) {
	return r.readDoc(ts, "allUserData.json")
}

// SkillDetail returns one user's stored skill breakdown.
func (r *Reader) SkillDetail(ts, uid string) (json.RawMessage, error) {
	if !sessionName.MatchString(uid) {
		return nil, core.ErrHistoryNotFound
	}
	return r.readDoc(ts, filepath.Join("users", uid+".json"))
}

// FightLogPath validates the session id and returns the path of its
// fight.log for download.
func (r *Reader) FightLogPath(ts string) (string, error) {
	if !sessionName.MatchString(ts) {
		return "", core.ErrHistoryNotFound
	}
	path := filepath.Join(r.root, ts, "fight.log")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", core.ErrHistoryNotFound
		}
		return "", err
	}
	return path, nil
}

func (r *Reader) readDoc(ts, name string) (json.RawMessage, error) {
	if !sessionName.MatchString(ts) {
		return nil, core.ErrHistoryNotFound
	}
	data, err := os.ReadFile(filepath.Join(r.root, ts, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history document: %w", err)
	}
	return json.RawMessage(data), nil
}
