package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

// Static is an in-memory directory for tests and local tooling.
type Static struct {
	mu      sync.RWMutex
	entries map[model.Party]model.Provider
}

func NewStatic() *Static {
	return &Static{entries: map[model.Party]model.Provider{}}
}

// Add registers a party. Provider fields other than Party, Name and Email
// only matter for lawyers and NGOs.
func (d *Static) Add(p model.Provider) *Static {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[p.Party] = p
	return d
}

func (d *Static) Lookup(_ context.Context, p model.Party) (model.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[p]
	if !ok {
		return model.Contact{}, model.NotFound(string(p.Role()))
	}
	return model.Contact{Name: e.Name, Email: e.Email}, nil
}

func (d *Static) SearchLawyers(_ context.Context, specialization string) ([]model.Provider, error) {
	return d.search(model.RoleLawyer, specialization), nil
}

func (d *Static) SearchNGOs(_ context.Context, ngoType string) ([]model.Provider, error) {
	return d.search(model.RoleNGO, ngoType), nil
}

func (d *Static) search(role model.Role, term string) []model.Provider {
	term = strings.ToLower(strings.TrimSpace(term))
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []model.Provider
	for p, e := range d.entries {
		if p.Role() != role || !e.Approved {
			continue
		}
		if strings.Contains(strings.ToLower(e.Category), term) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Party.ID() < out[j].Party.ID() })
	return out
}
