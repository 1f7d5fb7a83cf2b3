package meter

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
)

// Identity is one durable record in users.json. It outlives session
// clears so a returning player keeps their name, profession and fight
// point across restarts.
type Identity struct {
	Name       string `json:"name,omitempty"`
	Profession string `json:"profession,omitempty"`
	FightPoint int64  `json:"fightPoint,omitempty"`
	MaxHP      int64  `json:"maxHp,omitempty"`
}

const identitySaveDelay = 2 * time.Second

// IdentityCache keeps users.json in sync with observed identity events.
// Disk writes are debounced behind a single timer; Flush persists
// synchronously and is called on shutdown. A failed write is retried by
// whichever change schedules the next save.
type IdentityCache struct {
	mu      sync.Mutex // guards entries and timer
	wmu     sync.Mutex // serialises file writes
	path    string
	delay   time.Duration
	log     log.Logger
	entries map[string]Identity
	timer   *time.Timer
}

// OpenIdentityCache loads the cache file. A missing file starts an
// empty cache; a corrupt one is logged and replaced on the next save.
func OpenIdentityCache(path string, logger log.Logger) (*IdentityCache, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	c := &IdentityCache{
		path:    path,
		delay:   identitySaveDelay,
		log:     logger,
		entries: make(map[string]Identity),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(raw, &c.entries); err != nil {
			logger.Warnf("identity cache %s is corrupt, starting empty: %v", path, err)
			c.entries = make(map[string]Identity)
		}
	}
	return c, nil
}

func identityKey(uid uint64) string { return strconv.FormatUint(uid, 10) }

// Get returns the cached identity for a uid.
func (c *IdentityCache) Get(uid uint64) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[identityKey(uid)]
	return id, ok
}

func (c *IdentityCache) SetName(uid uint64, name string) {
	if name == "" {
		return
	}
	c.update(uid, func(id *Identity) bool {
		if id.Name == name {
			return false
		}
		id.Name = name
		return true
	})
}

func (c *IdentityCache) SetProfession(uid uint64, profession string) {
	if profession == "" {
		return
	}
	c.update(uid, func(id *Identity) bool {
		if id.Profession == profession {
			return false
		}
		id.Profession = profession
		return true
	})
}

func (c *IdentityCache) SetFightPoint(uid uint64, fp int64) {
	c.update(uid, func(id *Identity) bool {
		if fp <= 0 || id.FightPoint == fp {
			return false
		}
		id.FightPoint = fp
		return true
	})
}

func (c *IdentityCache) SetMaxHP(uid uint64, maxHP int64) {
	c.update(uid, func(id *Identity) bool {
		if maxHP <= 0 || id.MaxHP == maxHP {
			return false
		}
		id.MaxHP = maxHP
		return true
	})
}

func (c *IdentityCache) update(uid uint64, apply func(*Identity) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := identityKey(uid)
	id := c.entries[key]
	if !apply(&id) {
		return
	}
	c.entries[key] = id
	c.scheduleLocked()
}

// scheduleLocked (re)arms the trailing debounce timer.
func (c *IdentityCache) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.save)
}

func (c *IdentityCache) save() {
	c.mu.Lock()
	c.timer = nil
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()

	if err != nil {
		c.log.Errorf("failed to encode identity cache: %v", err)
		return
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		c.log.Errorf("failed to save identity cache: %v", err)
	}
}

// Flush cancels any pending debounce and persists immediately.
func (c *IdentityCache) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.save()
}
