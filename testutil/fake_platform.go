// Package testutil provides shared test doubles for the platform boundary.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/lunebot/tempchan/perms"
	"github.com/lunebot/tempchan/platform"
)

// FakePlatform is an in-memory platform.Client. It records every call and can
// be scripted to fail, so lifecycle scenarios run deterministically with no
// gateway.
type FakePlatform struct {
	mu sync.Mutex

	nextID   int
	channels map[string]bool // id -> exists

	createErr      error
	deleteFailures map[string]int // id -> remaining transient failures
	deleteErr      error          // error used for scripted delete failures

	deleteCalls map[string]int
	renames     map[string][]string
	messages    map[string][]string
	reactions   map[string][]string // messageID -> emojis
	grantCalls  map[string]int
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		channels:       make(map[string]bool),
		deleteFailures: make(map[string]int),
		deleteCalls:    make(map[string]int),
		renames:        make(map[string][]string),
		messages:       make(map[string][]string),
		reactions:      make(map[string][]string),
		grantCalls:     make(map[string]int),
	}
}

func (f *FakePlatform) BotUserID() string { return "bot" }

func (f *FakePlatform) CreateChannel(ctx context.Context, name, topic string, grants perms.GrantSet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("chan-%d", f.nextID)
	f.channels[id] = true
	f.renames[id] = []string{name}
	return id, nil
}

func (f *FakePlatform) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls[channelID]++
	if n := f.deleteFailures[channelID]; n > 0 {
		f.deleteFailures[channelID] = n - 1
		return f.deleteErr
	}
	if !f.channels[channelID] {
		return platform.ErrNotFound
	}
	delete(f.channels, channelID)
	return nil
}

func (f *FakePlatform) RenameChannel(ctx context.Context, channelID, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.channels[channelID] {
		return platform.ErrNotFound
	}
	f.renames[channelID] = append(f.renames[channelID], newName)
	return nil
}

func (f *FakePlatform) ApplyGrants(ctx context.Context, channelID string, delta perms.GrantDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.channels[channelID] {
		return platform.ErrNotFound
	}
	f.grantCalls[channelID]++
	return nil
}

func (f *FakePlatform) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.channels[channelID] {
		return "", platform.ErrNotFound
	}
	f.messages[channelID] = append(f.messages[channelID], text)
	return fmt.Sprintf("msg-%s-%d", channelID, len(f.messages[channelID])), nil
}

func (f *FakePlatform) AddReactions(ctx context.Context, channelID, messageID string, emojis []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = append(f.reactions[messageID], emojis...)
	return nil
}

// Scripting -----------------------------------------------------------------

// FailCreate makes the next CreateChannel calls fail with err until cleared.
func (f *FakePlatform) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// FailDeletes makes the next n DeleteChannel calls for id fail with err.
func (f *FakePlatform) FailDeletes(id string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFailures[id] = n
	f.deleteErr = err
}

// Inspection ----------------------------------------------------------------

// Exists reports whether the channel still exists platform-side.
func (f *FakePlatform) Exists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[id]
}

// DeleteCalls returns how many delete attempts id received.
func (f *FakePlatform) DeleteCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteCalls[id]
}

// Names returns every name the channel has carried, creation name first.
func (f *FakePlatform) Names(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.renames[id]...)
}

// Messages returns the texts posted into the channel.
func (f *FakePlatform) Messages(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages[id]...)
}

// Reactions returns the emojis seeded onto messageID.
func (f *FakePlatform) Reactions(messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reactions[messageID]...)
}

// GrantCalls returns how many grant deltas were applied to id.
func (f *FakePlatform) GrantCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grantCalls[id]
}

var _ platform.Client = (*FakePlatform)(nil)
