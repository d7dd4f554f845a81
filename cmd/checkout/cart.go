package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
)

// cart is a fixed cart read from flags or a JSON file.
type cart struct {
	mu     sync.Mutex
	items  []checkout.CartItem
	coupon string
}

var _ checkout.Cart = (*cart)(nil)

func (c *cart) Items() []checkout.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]checkout.CartItem(nil), c.items...)
}

func (c *cart) Subtotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (c *cart) Total() decimal.Decimal {
	return c.Subtotal()
}

func (c *cart) CouponCode() string {
	return c.coupon
}

func (c *cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// itemFlags collects repeated --item id:name:price[:qty] flags.
type itemFlags []checkout.CartItem

func (f *itemFlags) String() string {
	parts := make([]string, 0, len(*f))
	for _, it := range *f {
		parts = append(parts, it.ID)
	}
	return strings.Join(parts, ",")
}

func (f *itemFlags) Set(v string) error {
	fields := strings.Split(v, ":")
	if len(fields) < 3 || len(fields) > 4 {
		return fmt.Errorf("expected id:name:price[:qty], got %q", v)
	}
	price, err := decimal.NewFromString(fields[2])
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", fields[2], err)
	}
	qty := 1
	if len(fields) == 4 {
		if qty, err = strconv.Atoi(fields[3]); err != nil {
			return fmt.Errorf("invalid quantity %q: %w", fields[3], err)
		}
	}
	*f = append(*f, checkout.CartItem{ID: fields[0], Name: fields[1], Price: price, Quantity: qty})
	return nil
}

// loadCart reads a JSON array of cart items.
func loadCart(path string) ([]checkout.CartItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []checkout.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse cart %s: %w", path, err)
	}
	return items, nil
}
