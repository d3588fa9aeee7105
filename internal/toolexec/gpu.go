package toolexec

import (
	"fmt"
	"sync"

	"transphire/internal/stage"
)

// GPUPool assigns GPU ids to workers. Each id has one owner at a time unless
// split mode lets owners share the least loaded id.
type GPUPool struct {
	mu     sync.Mutex
	ids    []string
	split  bool
	owners map[string]string   // owner -> gpu
	users  map[string][]string // gpu -> owners
}

// NewGPUPool returns a pool over ids.
func NewGPUPool(ids []string, split bool) *GPUPool {
	return &GPUPool{
		ids:    append([]string(nil), ids...),
		split:  split,
		owners: make(map[string]string),
		users:  make(map[string][]string),
	}
}

// Assign returns the GPU held by owner, reserving a free one when owner holds
// none. Calling Assign again for the same owner returns the same id.
func (p *GPUPool) Assign(owner string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gpu, ok := p.owners[owner]; ok {
		return gpu, nil
	}
	if len(p.ids) == 0 {
		return "", stage.Wrap(stage.ErrConfiguration, owner, "assign gpu", "tool requests a GPU but none are configured", nil)
	}
	var pick string
	least := -1
	for _, id := range p.ids {
		n := len(p.users[id])
		if n == 0 {
			pick = id
			break
		}
		if p.split && (least < 0 || n < least) {
			pick, least = id, n
		}
	}
	if pick == "" {
		return "", stage.Wrap(stage.ErrGPUUnavailable, owner, "assign gpu",
			fmt.Sprintf("all %d gpus are in use and split_gpu is off", len(p.ids)), nil)
	}
	p.owners[owner] = pick
	p.users[pick] = append(p.users[pick], owner)
	return pick, nil
}

// Release frees the GPU held by owner.
func (p *GPUPool) Release(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	gpu, ok := p.owners[owner]
	if !ok {
		return
	}
	delete(p.owners, owner)
	users := p.users[gpu]
	for i, u := range users {
		if u == owner {
			p.users[gpu] = append(users[:i], users[i+1:]...)
			break
		}
	}
}

// Owners returns how many workers hold gpu.
func (p *GPUPool) Owners(gpu string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users[gpu])
}
