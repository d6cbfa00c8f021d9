package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

type Order struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id,omitempty"`
	UserID     string    `json:"user_id"`
	BookID     string    `json:"book_id"` // representative book, first line item
	Items      []Item    `json:"items"`
	Status     Status    `json:"status"` // lihat status.go
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Book struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Author       string          `json:"author"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	ArtifactPath string          `json:"-"`
	Description  string          `json:"description,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// BookIDs returns the distinct books of the order, representative book first.
func (o Order) BookIDs() []string {
	seen := make(map[string]bool, len(o.Items)+1)
	out := make([]string, 0, len(o.Items)+1)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(o.BookID)
	for _, it := range o.Items {
		add(it.BookID)
	}
	return out
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
