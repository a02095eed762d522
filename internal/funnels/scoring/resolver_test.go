package scoring

import (
	"testing"

	"leadfunnel_backend/internal/funnels/domain"
)

func TestResolveFirstNonEmptyWins(t *testing.T) {
	f := Resolve(domain.Answers{"timeline": "", "when_looking_to_move": "asap"}, map[string]any{"timeline": "exploring"})
	if f.Timeline != "asap" {
		t.Fatalf("expected alias value asap, got %v", f.Timeline)
	}
}

func TestResolveFallsBackToContactData(t *testing.T) {
	f := Resolve(domain.Answers{}, map[string]any{
		"timeline":        "30_days",
		"budget_range":    "500k_1m",
		"area_preference": "Little Havana",
	})
	if f.Timeline != "30_days" || f.Budget != "500k_1m" || f.Area != "Little Havana" {
		t.Fatalf("expected contact-data fallback, got %+v", f)
	}
}

func TestResolveFinancialHasNoContactFallback(t *testing.T) {
	f := Resolve(domain.Answers{}, map[string]any{"pre_approval": "yes"})
	if f.Financial != nil {
		t.Fatalf("expected financial readiness to stay absent, got %v", f.Financial)
	}
}

func TestResolveOrder(t *testing.T) {
	f := Resolve(domain.Answers{
		"payment_method":    "cash",
		"employment_status": "student",
		"area_preference":   "Doral",
		"property_address":  "1 Main St",
	}, nil)
	if f.Financial != "cash" {
		t.Fatalf("expected payment_method before employment_status, got %v", f.Financial)
	}
	if f.Area != "Doral" {
		t.Fatalf("expected area_preference before property_address, got %v", f.Area)
	}
}

func TestResolveKeepsWhitespaceValues(t *testing.T) {
	f := Resolve(domain.Answers{"timeline": "  ", "area_preference": " "}, map[string]any{"timeline": "asap"})
	if f.Timeline != "  " || f.Area != " " {
		t.Fatalf("expected whitespace answers to win, got %+v", f)
	}
}
