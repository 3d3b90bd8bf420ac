// Package eval holds the script buffers and the evaluation front of the
// debugger: ad-hoc script text is kept in numbered buffers, optionally
// prefixed with a capture list, and run on or off the VM goroutine.
package eval

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Buffers is a numbered set of script texts. Ids are assigned from a
// monotonic counter starting at 1 and never reused, so saved references
// stay stable across deletes.
type Buffers struct {
	mu      sync.Mutex
	entries map[uint]string
	counter uint
}

func NewBuffers() *Buffers {
	return &Buffers{entries: make(map[uint]string), counter: 1}
}

// Add stores content under a fresh id and returns it.
func (b *Buffers) Add(content string) uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.counter
	b.counter++
	b.entries[id] = content
	return id
}

func (b *Buffers) Get(id uint) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.entries[id]
	if !ok {
		return "", fmt.Errorf("no buffer %d", id)
	}
	return content, nil
}

func (b *Buffers) Set(id uint, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; !ok {
		return fmt.Errorf("no buffer %d", id)
	}
	b.entries[id] = content
	return nil
}

func (b *Buffers) Delete(id uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; !ok {
		return fmt.Errorf("no buffer %d", id)
	}
	delete(b.entries, id)
	return nil
}

// Info is one buffer listing entry.
type Info struct {
	ID      uint
	Content string
}

// List returns all buffers ordered by id.
func (b *Buffers) List() []Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Info, 0, len(b.entries))
	for id, content := range b.entries {
		out = append(out, Info{ID: id, Content: content})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type buffersState struct {
	Entries map[uint]string `json:"entries"`
	Counter uint            `json:"counter"`
}

func (b *Buffers) MarshalJSON() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return json.Marshal(buffersState{Entries: b.entries, Counter: b.counter})
}

func (b *Buffers) UnmarshalJSON(data []byte) error {
	var st buffersState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = st.Entries
	if b.entries == nil {
		b.entries = make(map[uint]string)
	}
	b.counter = st.Counter
	if b.counter == 0 {
		b.counter = 1
	}
	return nil
}
