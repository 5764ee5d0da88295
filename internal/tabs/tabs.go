// Package tabs models the workbench's editor deck: an ordered set of SQL
// tabs, one of which is active. A deck never becomes empty; closing the last
// tab replaces it with a fresh one.
package tabs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SchemaVersion tags persisted decks so later layouts can migrate old saves.
const SchemaVersion = 1

var (
	ErrTabNotFound = errors.New("tabs: tab not found")
	// ErrNoSavedDeck reports a store that holds no deck yet.
	ErrNoSavedDeck = errors.New("tabs: no saved deck")
)

type Category string

const (
	CategoryScript   Category = "scripts"
	CategoryBookmark Category = "bookmarks"
	CategoryTemplate Category = "templates"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryScript, CategoryBookmark, CategoryTemplate:
		return true
	}
	return false
}

type Tab struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	SQLText   string    `json:"sql_text"`
	Dirty     bool      `json:"dirty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Saved is the persisted form of a deck.
type Saved struct {
	SchemaVersion int    `json:"schema_version"`
	Tabs          []Tab  `json:"tabs"`
	ActiveID      string `json:"active_id"`
}

// Store persists one deck per workbench.
type Store interface {
	Load(ctx context.Context) (Saved, error)
	Save(ctx context.Context, saved Saved) error
}

// Deck is safe for concurrent use.
type Deck struct {
	mu     sync.Mutex
	tabs   []Tab
	active string
	now    func() time.Time
}

// NewDeck returns a deck holding a single blank script tab.
func NewDeck() *Deck {
	deck := &Deck{now: time.Now}
	deck.tabs = []Tab{deck.freshTab("untitled")}
	deck.active = deck.tabs[0].ID
	return deck
}

// Restore rebuilds a deck from a persisted save. Saves from an unknown
// schema version or without tabs are rejected.
func Restore(saved Saved) (*Deck, error) {
	if saved.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("tabs: unsupported deck schema version %d", saved.SchemaVersion)
	}
	if len(saved.Tabs) == 0 {
		return nil, fmt.Errorf("tabs: saved deck has no tabs")
	}
	deck := &Deck{now: time.Now, tabs: append([]Tab(nil), saved.Tabs...)}
	deck.active = saved.ActiveID
	if _, ok := deck.indexOf(deck.active); !ok {
		deck.active = deck.tabs[0].ID
	}
	return deck, nil
}

// Snapshot captures the deck for persistence.
func (d *Deck) Snapshot() Saved {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Saved{
		SchemaVersion: SchemaVersion,
		Tabs:          append([]Tab(nil), d.tabs...),
		ActiveID:      d.active,
	}
}

// Open appends a tab and makes it active.
func (d *Deck) Open(name string, category Category) Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	tab := d.freshTab(name)
	if category.Valid() {
		tab.Category = category
	}
	d.tabs = append(d.tabs, tab)
	d.active = tab.ID
	return tab
}

// Close removes a tab. Closing the last remaining tab replaces it with a
// blank one so the deck never empties; closing the active tab activates its
// left neighbor.
func (d *Deck) Close(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	index, ok := d.indexOf(id)
	if !ok {
		return ErrTabNotFound
	}
	d.tabs = append(d.tabs[:index], d.tabs[index+1:]...)
	if len(d.tabs) == 0 {
		replacement := d.freshTab("untitled")
		d.tabs = []Tab{replacement}
		d.active = replacement.ID
		return nil
	}
	if d.active == id {
		if index > 0 {
			index--
		}
		d.active = d.tabs[index].ID
	}
	return nil
}

func (d *Deck) Activate(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.indexOf(id); !ok {
		return ErrTabNotFound
	}
	d.active = id
	return nil
}

func (d *Deck) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tabs: tab name is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	index, ok := d.indexOf(id)
	if !ok {
		return ErrTabNotFound
	}
	d.tabs[index].Name = name
	d.tabs[index].UpdatedAt = d.now().UTC()
	return nil
}

// SetSQL replaces a tab's editor text and marks it dirty.
func (d *Deck) SetSQL(id, sqlText string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	index, ok := d.indexOf(id)
	if !ok {
		return ErrTabNotFound
	}
	d.tabs[index].SQLText = sqlText
	d.tabs[index].Dirty = true
	d.tabs[index].UpdatedAt = d.now().UTC()
	return nil
}

// MarkExecuted clears the dirty flag after a successful run.
func (d *Deck) MarkExecuted(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	index, ok := d.indexOf(id)
	if !ok {
		return ErrTabNotFound
	}
	d.tabs[index].Dirty = false
	d.tabs[index].UpdatedAt = d.now().UTC()
	return nil
}

func (d *Deck) Get(id string) (Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	index, ok := d.indexOf(id)
	if !ok {
		return Tab{}, ErrTabNotFound
	}
	return d.tabs[index], nil
}

// List returns the tabs in deck order, optionally filtered by category.
func (d *Deck) List(category Category) []Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Tab, 0, len(d.tabs))
	for _, tab := range d.tabs {
		if category != "" && tab.Category != category {
			continue
		}
		out = append(out, tab)
	}
	return out
}

func (d *Deck) ActiveID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Deck) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tabs)
}

func (d *Deck) indexOf(id string) (int, bool) {
	for i, tab := range d.tabs {
		if tab.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (d *Deck) freshTab(name string) Tab {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "untitled"
	}
	return Tab{
		ID:        newTabID(),
		Name:      name,
		Category:  CategoryScript,
		UpdatedAt: d.now().UTC(),
	}
}

func newTabID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("tab-%d", time.Now().UnixNano())
	}
	return "tab-" + hex.EncodeToString(buf)
}
