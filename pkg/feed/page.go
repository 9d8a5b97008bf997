package feed

// Page is the ordered, deduplicated accumulation of items plus the cursor
// for the next fetch. The zero value is an empty page that has not been
// fetched yet.
//
// Page is not safe for concurrent use; its owner serialises access.
type Page struct {
	items     []Item
	index     map[string]struct{}
	cursor    string
	exhausted bool
}

// NewPage returns an empty, not yet fetched page.
func NewPage() *Page {
	return &Page{index: make(map[string]struct{})}
}

// MergeResult reports what a merge did.
type MergeResult struct {
	Added      int
	Duplicates int
}

// Merge appends incoming items in order, dropping every item whose ID is
// already present (first-seen wins, within the batch as well), and moves
// the cursor. An empty NextCursor marks the page as exhausted.
func (p *Page) Merge(batch Batch) MergeResult {
	if p.index == nil {
		p.index = make(map[string]struct{}, len(p.items)+len(batch.Items))
		for _, it := range p.items {
			p.index[it.ID] = struct{}{}
		}
	}

	var res MergeResult
	for _, it := range batch.Items {
		if _, ok := p.index[it.ID]; ok {
			res.Duplicates++
			continue
		}
		p.index[it.ID] = struct{}{}
		p.items = append(p.items, it)
		res.Added++
	}

	p.cursor = batch.NextCursor
	p.exhausted = batch.NextCursor == ""

	return res
}

// Items returns a copy of the accumulated items in render order.
func (p *Page) Items() []Item {
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of accumulated items.
func (p *Page) Len() int {
	return len(p.items)
}

// Cursor returns the token for the next fetch. Empty before the first fetch.
func (p *Page) Cursor() string {
	return p.cursor
}

// Exhausted reports whether the source said there are no further pages.
func (p *Page) Exhausted() bool {
	return p.exhausted
}

// Contains reports whether an item with the given ID is present.
func (p *Page) Contains(id string) bool {
	_, ok := p.index[id]
	return ok
}
