package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"

	"bankledger/internal/domain/transaction"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"placeholders kept", "SELECT * FROM t WHERE a = $1 AND b = $12", "SELECT * FROM t WHERE a = $1 AND b = $12"},
		{"string literal", "SELECT * FROM t WHERE status = 'active'", "SELECT * FROM t WHERE status = '?'"},
		{"escaped quote", "SELECT 'it''s'", "SELECT '?'"},
		{"numeric literal", "SELECT * FROM t LIMIT 10", "SELECT * FROM t LIMIT ?"},
		{"decimal literal", "SELECT 3.14", "SELECT ?"},
		{"identifier digits", "SELECT col1 FROM t2", "SELECT col1 FROM t2"},
		{"cast", "WHERE d <= ($4::date + 1)", "WHERE d <= ($4::date + ?)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeQuery(tt.in); got != tt.want {
				t.Errorf("sanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeQuery_Truncates(t *testing.T) {
	got := sanitizeQuery("SELECT " + strings.Repeat("a", 300))
	if len(got) != 256+len("...") || !strings.HasSuffix(got, "...") {
		t.Errorf("len = %d, want truncated to 256 plus ellipsis", len(got))
	}
}

func TestExtractSQLVerb(t *testing.T) {
	tests := map[string]string{
		"\n\t\tSELECT id FROM t": "SELECT",
		"insert into t values":   "INSERT",
		"BEGIN":                  "BEGIN",
		"UPDATE\n\tledger SET":   "UPDATE",
		"   ":                    "",
	}
	for in, want := range tests {
		if got := extractSQLVerb(in); got != want {
			t.Errorf("extractSQLVerb(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPoolConfigDefaults(t *testing.T) {
	got := PoolConfig{MaxIdleConns: 2}.withDefaults()

	if got.MaxOpenConns != 25 || got.MaxIdleConns != 2 || got.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("withDefaults() = %+v", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"lock not available", &pq.Error{Code: "55P03"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"wrapped deadlock", fmt.Errorf("exec: %w", &pq.Error{Code: "40P01"}), true},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"not null violation", &pq.Error{Code: "23502"}, false},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("exec: %w", &pq.Error{Code: "23505"})) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "40P01"}) {
		t.Error("deadlock is not a unique violation")
	}
}

func TestBuildBulkInsert(t *testing.T) {
	date := civil.Date{Year: 2024, Month: 3, Day: 5}
	txns := []*transaction.Transaction{
		{ID: "a", ExternalID: "ext-a", AccountID: "acc-1", TransactionDate: date},
		{ID: "b", ExternalID: "ext-b", AccountID: "acc-1", TransactionDate: date, Status: transaction.StatusActive},
	}

	query, args := buildBulkInsert(txns)

	if len(args) != 2*insertColumnCount {
		t.Fatalf("len(args) = %d, want %d", len(args), 2*insertColumnCount)
	}
	if !strings.Contains(query, "($1, $2,") || !strings.Contains(query, "$7::date") {
		t.Errorf("first row placeholders missing: %s", query)
	}
	if !strings.Contains(query, fmt.Sprintf("$%d)", 2*insertColumnCount)) {
		t.Errorf("last placeholder missing: %s", query)
	}
	if args[6] != "2024-03-05" {
		t.Errorf("date arg = %v, want 2024-03-05", args[6])
	}
	if args[insertColumnCount-1] != "active" {
		t.Errorf("default status = %v, want active", args[insertColumnCount-1])
	}
}
