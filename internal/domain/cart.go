package domain

import "time"

// CartLine is the read-only cart snapshot consumed at checkout.
type CartLine struct {
	ProductID   string
	VariantSize VariantSize
	Quantity    int
	Price       float64
}

// Cart belongs to a single user and is emptied once an order is placed.
type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// Address is a saved delivery address.
type Address struct {
	ID         string
	UserID     string
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Snapshot copies the fields persisted on an order.
func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
