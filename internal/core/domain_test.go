package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateOfDropsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	got := DateOf(time.Date(2025, 3, 9, 23, 59, 59, 999_000_000, loc))
	if !got.Equal(NewDate(2025, 3, 9).Time) {
		t.Fatalf("expected 2025-03-09, got %s", got)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-03-10", "2025-03-10", true},
		{"2025-03-10T18:30:00.000Z", "2025-03-10", true},
		{" 2025-10-01 ", "2025-10-01", true},
		{"10/03/2025", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || d.String() != tc.want {
				t.Fatalf("case %d expected %s, got %s (err=%v)", i, tc.want, d, err)
			}
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestTransactionJSON(t *testing.T) {
	tx := Transaction{ID: "a1", Date: NewDate(2025, 3, 10), Category: "Fuel", Amount: decimal.RequireFromString("30.50")}
	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"a1","date":"2025-03-10","category":"Fuel","amount":"30.5"}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var back Transaction
	if err := json.Unmarshal([]byte(`{"date":"2025-03-10","category":"Fuel","amount":30.5}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != "" || !back.Amount.Equal(tx.Amount) || back.Date.String() != "2025-03-10" {
		t.Fatalf("unexpected decode %+v", back)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{Date: NewDate(2025, 1, 1), Category: "Food", Amount: decimal.Zero}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		tx   Transaction
		want error
	}{
		{Transaction{Category: "Food", Amount: decimal.NewFromInt(1)}, ErrInvalidDate},
		{Transaction{Date: NewDate(2025, 1, 1), Category: "  ", Amount: decimal.NewFromInt(1)}, ErrMissingCategory},
		{Transaction{Date: NewDate(2025, 1, 1), Category: "Food", Amount: decimal.NewFromInt(-1)}, ErrInvalidAmount},
	}
	for i, tc := range bads {
		if err := tc.tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestDraftTransaction(t *testing.T) {
	today := NewDate(2025, 6, 2)
	tests := []struct {
		name    string
		draft   Draft
		want    Transaction
		wantErr error
	}{
		{
			name:  "known category",
			draft: Draft{Date: NewDate(2025, 6, 1), Category: "Groceries", Amount: "12,50"},
			want:  Transaction{Date: NewDate(2025, 6, 1), Category: "Groceries", Amount: decimal.RequireFromString("12.5")},
		},
		{
			name:  "other uses custom name",
			draft: Draft{Category: OtherCategory, CustomCategory: "Books", Amount: "8"},
			want:  Transaction{Date: today, Category: "Books", Amount: decimal.NewFromInt(8)},
		},
		{
			name:    "other without custom name",
			draft:   Draft{Category: OtherCategory, Amount: "8"},
			wantErr: ErrMissingCategory,
		},
		{
			name:    "missing amount",
			draft:   Draft{Category: "Fuel"},
			wantErr: ErrMissingAmount,
		},
		{
			name:    "negative amount",
			draft:   Draft{Category: "Fuel", Amount: "-3"},
			wantErr: ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.draft.Transaction(today)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected error to be a validation error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Category != tt.want.Category || !got.Amount.Equal(tt.want.Amount) || !got.Date.Equal(tt.want.Date.Time) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestGoalAchievedAndProgress(t *testing.T) {
	cases := []struct {
		target, saved string
		achieved      bool
		progress      string
	}{
		{"1000", "1000", true, "1"},
		{"1000", "250", false, "0.25"},
		{"1000", "1500", true, "1.5"},
		{"0", "0", false, "0"},
		{"0", "500", false, "0"},
	}
	for i, tc := range cases {
		g := Goal{TargetAmount: decimal.RequireFromString(tc.target), SavedAmount: decimal.RequireFromString(tc.saved)}
		if g.Achieved() != tc.achieved {
			t.Fatalf("case %d expected achieved=%v", i, tc.achieved)
		}
		if !g.Progress().Equal(decimal.RequireFromString(tc.progress)) {
			t.Fatalf("case %d expected progress %s, got %s", i, tc.progress, g.Progress())
		}
	}
}

func TestCategoryAmountsGet(t *testing.T) {
	a := CategoryAmounts{"Food": decimal.NewFromInt(5)}
	if !a.Get("Food").Equal(decimal.NewFromInt(5)) || !a.Get("Fuel").IsZero() {
		t.Fatalf("unexpected lookups: %v", a)
	}
	c := a.Clone()
	c["Food"] = decimal.Zero
	if a.Get("Food").IsZero() {
		t.Fatalf("clone shares storage with original")
	}
}
