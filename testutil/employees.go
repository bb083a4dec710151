package testutil

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/c360/semcache/cache"
)

// Employee is a grouped payload: grouped by department and reachable
// through its email as a secondary key.
type Employee struct {
	ID         string `json:"id"`
	Department string `json:"department"`
	Email      string `json:"email"`
}

// CacheKey returns the employee id.
func (e *Employee) CacheKey() string { return e.ID }

// GroupKey returns the department.
func (e *Employee) GroupKey() string { return e.Department }

// SecondaryKeys exposes the email index.
func (e *Employee) SecondaryKeys() []cache.IndexKey {
	return []cache.IndexKey{{Index: "email", Key: e.Email}}
}

// DepartmentLoader is an in-memory GroupLoader over employees.
type DepartmentLoader struct {
	mu        sync.RWMutex
	employees map[string]*Employee
	err       error

	entityCalls atomic.Int64
	groupCalls  atomic.Int64
}

// NewDepartmentLoader creates a loader holding employees.
func NewDepartmentLoader(employees ...*Employee) *DepartmentLoader {
	l := &DepartmentLoader{employees: make(map[string]*Employee)}
	for _, e := range employees {
		l.employees[e.ID] = e
	}
	return l
}

// Staff returns a fixed set of six employees in two departments.
func Staff() []*Employee {
	return []*Employee{
		{ID: "e1", Department: "eng", Email: "ada@example.com"},
		{ID: "e2", Department: "eng", Email: "linus@example.com"},
		{ID: "e3", Department: "eng", Email: "grace@example.com"},
		{ID: "s1", Department: "sales", Email: "don@example.com"},
		{ID: "s2", Department: "sales", Email: "peggy@example.com"},
		{ID: "s3", Department: "sales", Email: "joan@example.com"},
	}
}

// Put adds or replaces an employee in the source.
func (l *DepartmentLoader) Put(e *Employee) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.employees[e.ID] = e
}

// FailWith makes every subsequent fetch return err; nil restores normal
// behaviour.
func (l *DepartmentLoader) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// FetchEntity looks an employee up by id.
func (l *DepartmentLoader) FetchEntity(_ context.Context, key string) (*Employee, bool, error) {
	l.entityCalls.Add(1)
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.err != nil {
		return nil, false, l.err
	}
	e, ok := l.employees[key]
	return e, ok, nil
}

// FetchAll returns every employee ordered by id.
func (l *DepartmentLoader) FetchAll(_ context.Context) ([]*Employee, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.err != nil {
		return nil, l.err
	}
	return l.sorted(func(*Employee) bool { return true }), nil
}

// FetchGroups returns the department names, sorted.
func (l *DepartmentLoader) FetchGroups(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.err != nil {
		return nil, l.err
	}
	var groups []string
	for _, e := range l.employees {
		if !slices.Contains(groups, e.Department) {
			groups = append(groups, e.Department)
		}
	}
	slices.Sort(groups)
	return groups, nil
}

// FetchByGroup returns the members of a department ordered by id.
func (l *DepartmentLoader) FetchByGroup(_ context.Context, groupKey string) ([]*Employee, error) {
	l.groupCalls.Add(1)
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.err != nil {
		return nil, l.err
	}
	return l.sorted(func(e *Employee) bool { return e.Department == groupKey }), nil
}

// EntityCalls returns how many times FetchEntity ran.
func (l *DepartmentLoader) EntityCalls() int64 { return l.entityCalls.Load() }

// GroupCalls returns how many times FetchByGroup ran.
func (l *DepartmentLoader) GroupCalls() int64 { return l.groupCalls.Load() }

func (l *DepartmentLoader) sorted(keep func(*Employee) bool) []*Employee {
	var out []*Employee
	for _, e := range l.employees {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *Employee) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}
