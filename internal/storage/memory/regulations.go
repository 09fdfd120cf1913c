package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/canalenergetico/canal-web/internal/slug"
	"github.com/canalenergetico/canal-web/internal/store"
)

// CountRegulations implements store.RegulationRepository.
func (s *Store) CountRegulations(_ context.Context, f store.RegulationFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchRegulations(f)), nil
}

// ListRegulations implements store.RegulationRepository.
func (s *Store) ListRegulations(_ context.Context, f store.RegulationFilter) ([]store.Regulation, error) {
	s.mu.RLock()
	rows := s.matchRegulations(f)
	s.mu.RUnlock()

	if f.Order == store.OrderAZ {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Title < rows[j].Title })
	} else {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].PublishedOn, rows[j].PublishedOn
			switch {
			case a == nil && b == nil:
				return rows[i].Title < rows[j].Title
			case a == nil:
				return false
			case b == nil:
				return true
			case !a.Equal(*b):
				return a.After(*b)
			default:
				return rows[i].Title < rows[j].Title
			}
		})
	}

	if f.Offset >= len(rows) {
		return []store.Regulation{}, nil
	}
	rows = rows[f.Offset:]
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows, nil
}

// CreateRegulation implements store.RegulationRepository.
func (s *Store) CreateRegulation(_ context.Context, r *store.Regulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.regulations {
		if existing.Slug == r.Slug {
			return store.ErrConflict
		}
	}
	r.ID = s.nextID()
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	r.Year = nil
	if r.PublishedOn != nil {
		y := r.PublishedOn.Year()
		r.Year = &y
	}
	s.regulations[r.ID] = *r
	return nil
}

// RegulationSlugExists implements store.RegulationRepository.
func (s *Store) RegulationSlugExists(_ context.Context, sl string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.regulations {
		if r.Slug == sl {
			return true, nil
		}
	}
	return false, nil
}

// matchRegulations applies the filters. The text query approximates the
// Postgres full text search: every word must appear in title or description,
// ignoring case and accents. Caller holds a lock.
func (s *Store) matchRegulations(f store.RegulationFilter) []store.Regulation {
	words := slug.Words(f.Query)
	out := make([]store.Regulation, 0)
	for _, r := range s.regulations {
		if f.Topic != "" && r.Topic != f.Topic {
			continue
		}
		if f.Institution != "" && r.Institution != f.Institution {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.Year != nil && (r.Year == nil || *r.Year != *f.Year) {
			continue
		}
		if len(words) > 0 {
			haystack := " " + strings.Join(slug.Words(r.Title+" "+r.Description), " ")
			matched := true
			for _, w := range words {
				if !strings.Contains(haystack, " "+w) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
