package address

import (
	"errors"
	"testing"

	"onchain-analytics/internal/domain"
)

const (
	walletAddr = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	pdaAddr    = "4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"wallet", walletAddr, false},
		{"wrapped sol mint", domain.WrappedSOLMint, false},
		{"system program", "11111111111111111111111111111111", false},
		{"empty", "", true},
		{"too short", "abc", true},
		{"invalid alphabet", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", true},
		{"too long", walletAddr + walletAddr, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("wallet", tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != "wallet" {
				t.Errorf("expected field wallet, got %+v", verr)
			}
		})
	}
}

func TestIsOnCurve(t *testing.T) {
	if !IsOnCurve(walletAddr) {
		t.Errorf("expected %s on curve", walletAddr)
	}
	if IsOnCurve(pdaAddr) {
		t.Errorf("expected %s off curve", pdaAddr)
	}
	if IsOnCurve("not-an-address") {
		t.Error("expected invalid address to report false")
	}
}

func TestIsProgramDerived(t *testing.T) {
	if !IsProgramDerived(pdaAddr) {
		t.Errorf("expected %s to be program derived", pdaAddr)
	}
	if IsProgramDerived(walletAddr) {
		t.Errorf("expected %s not program derived", walletAddr)
	}
	if IsProgramDerived("") {
		t.Error("expected empty address to report false")
	}
}
