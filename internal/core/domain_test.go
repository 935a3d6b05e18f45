package core

import (
	"errors"
	"testing"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-15", true},
		{" 2024-03-15 ", true},
		{"2024-02-29", true}, // leap day
		{"2024-13-01", false},
		{"15/03/2024", false},
		{"", false},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q unexpected error: %v", tc.in, err)
			}
			if d.String() != "2024-03-15" && d.String() != "2024-02-29" {
				t.Fatalf("%q round-tripped to %q", tc.in, d.String())
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestDateComponents(t *testing.T) {
	d := NewDate(2024, 3, 15)
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 15 {
		t.Fatalf("got %d-%d-%d", d.Year(), d.Month(), d.Day())
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		UserID:   "u1",
		Date:     NewDate(2024, 3, 15),
		Amount:   Money{Cents: 1500},
		Type:     Expense,
		Category: "Groceries",
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"valid", func(*Transaction) {}, nil},
		{"empty user", func(tx *Transaction) { tx.UserID = " " }, ErrEmptyUser},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount.Cents = -100 }, ErrInvalidAmount},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, ErrInvalidType},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := valid
			tc.mutate(&tx)
			err := tx.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{UserID: "u1", Name: "Rent"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Category{Name: "Rent"}).Validate(); !errors.Is(err, ErrEmptyUser) {
		t.Fatalf("expected ErrEmptyUser, got %v", err)
	}
	if err := (Category{UserID: "u1"}).Validate(); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
}
