package listing

import "github.com/okian/ideabox/internal/domain/model"

// pager holds one paginated result: a head that live snapshots replace and a
// tail of items appended by load-more. Items dedupe by ID, head first.
type pager struct {
	head    []model.Idea
	tail    []model.Idea
	cursor  *model.Cursor
	hasMore bool
}

func (p *pager) reset() {
	*p = pager{}
}

// setHead installs a first page. While nothing was appended yet the page
// also decides where load-more continues. Once the tail holds items, the
// cursor is already past the old head, so ideas a newer one pushed out of a
// full head move to the front of the tail. Ideas that left the head for any
// other reason let the new head reach further down instead, and are dropped.
func (p *pager) setHead(page model.IdeaPage) {
	old := p.head
	p.head = page.Items
	if len(p.tail) > 0 {
		p.carryDisplaced(old, page)
		return
	}
	p.hasMore = page.Full()
	p.cursor = nil
	if n := len(page.Items); n > 0 {
		p.cursor = model.CursorOf(&page.Items[n-1])
	}
}

func (p *pager) carryDisplaced(old []model.Idea, page model.IdeaPage) {
	n := len(page.Items)
	if n == 0 || !page.Full() {
		return
	}
	last := model.CursorOf(&page.Items[n-1])
	seen := p.ids()
	var carried []model.Idea
	for _, idea := range old {
		if _, kept := seen[idea.ID]; kept || !last.Before(&idea) {
			continue
		}
		seen[idea.ID] = struct{}{}
		carried = append(carried, idea)
	}
	if len(carried) > 0 {
		p.tail = append(carried, p.tail...)
	}
}

// appendPage adds a load-more page and returns how many new ids it brought.
func (p *pager) appendPage(page model.IdeaPage, limit int) int {
	seen := p.ids()
	added := 0
	for _, idea := range page.Items {
		if _, dup := seen[idea.ID]; dup {
			continue
		}
		seen[idea.ID] = struct{}{}
		p.tail = append(p.tail, idea)
		added++
	}
	if n := len(page.Items); n > 0 {
		p.cursor = model.CursorOf(&page.Items[n-1])
	}
	p.hasMore = len(page.Items) == limit
	return added
}

func (p *pager) ids() map[string]struct{} {
	seen := make(map[string]struct{}, len(p.head)+len(p.tail))
	for _, idea := range p.head {
		seen[idea.ID] = struct{}{}
	}
	for _, idea := range p.tail {
		seen[idea.ID] = struct{}{}
	}
	return seen
}

// items returns head then tail, first occurrence of each id winning.
func (p *pager) items() []model.Idea {
	out := make([]model.Idea, 0, len(p.head)+len(p.tail))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]model.Idea{p.head, p.tail} {
		for _, idea := range list {
			if _, dup := seen[idea.ID]; dup {
				continue
			}
			seen[idea.ID] = struct{}{}
			out = append(out, idea)
		}
	}
	return out
}

func (p *pager) size() int {
	return len(p.items())
}
