package vm

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
)

// addrComparer orders page table keys by address.
type addrComparer struct{}

func (addrComparer) Compare(a, b uintptr) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// PageTable is the supplemental page table of an address space: a sorted
// map from page-aligned virtual addresses to page descriptors. Writers are
// serialized by a mutex and publish a new snapshot; readers never block.
type PageTable struct {
	mu    sync.Mutex
	pages atomic.Pointer[immutable.SortedMap[uintptr, *Page]]
}

func newPageTable() *PageTable {
	t := &PageTable{}
	t.pages.Store(immutable.NewSortedMap[uintptr, *Page](addrComparer{}))
	return t
}

// Lookup returns the page registered at the page containing vaddr.
func (t *PageTable) Lookup(vaddr uintptr) (*Page, bool) {
	return t.pages.Load().Get(pageKey(vaddr))
}

// Len returns the number of registered pages.
func (t *PageTable) Len() int {
	return t.pages.Load().Len()
}

// Walk invokes fn for each registered page in ascending address order until
// fn returns false.
func (t *PageTable) Walk(fn func(*Page) bool) {
	itr := t.pages.Load().Iterator()
	for !itr.Done() {
		_, page, _ := itr.Next()
		if !fn(page) {
			return
		}
	}
}

// insert adds page to the table unless its address is already taken.
func (t *PageTable) insert(page *Page) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pages := t.pages.Load()
	if _, exists := pages.Get(page.vaddr); exists {
		return false
	}
	t.pages.Store(pages.Set(page.vaddr, page))
	return true
}

// insertAll adds every page or none of them.
func (t *PageTable) insertAll(list []*Page) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pages := t.pages.Load()
	for _, page := range list {
		if _, exists := pages.Get(page.vaddr); exists {
			return false
		}
	}
	for _, page := range list {
		pages = pages.Set(page.vaddr, page)
	}
	t.pages.Store(pages)
	return true
}

// remove deletes and returns the page at vaddr.
func (t *PageTable) remove(vaddr uintptr) (*Page, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pages := t.pages.Load()
	page, ok := pages.Get(pageKey(vaddr))
	if ok {
		t.pages.Store(pages.Delete(page.vaddr))
	}
	return page, ok
}

// drain empties the table and returns its pages in address order.
func (t *PageTable) drain() []*Page {
	t.mu.Lock()
	defer t.mu.Unlock()

	var list []*Page
	t.Walk(func(p *Page) bool {
		list = append(list, p)
		return true
	})
	t.pages.Store(immutable.NewSortedMap[uintptr, *Page](addrComparer{}))
	return list
}

func pageKey(vaddr uintptr) uintptr {
	return vaddr &^ (pageSize - 1)
}
