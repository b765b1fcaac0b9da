package solana_test

import (
	"context"
	"fmt"
	"testing"

	"onchain-analytics/internal/solana"
	"onchain-analytics/internal/solana/stub"
)

func sigs(n int, firstSlot int64) []solana.SignatureInfo {
	out := make([]solana.SignatureInfo, n)
	for i := range out {
		slot := firstSlot + int64(n-1-i)
		bt := 1_700_000_000 + slot
		out[i] = solana.SignatureInfo{Signature: fmt.Sprintf("sig-%d", slot), Slot: slot, BlockTime: &bt}
	}
	return out
}

func TestLaunchTime_WalksToOldestSignature(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("mint", sigs(2500, 10))

	ms, exhaustive, err := solana.LaunchTime(context.Background(), rpc, "mint", 5)
	if err != nil {
		t.Fatalf("LaunchTime: %v", err)
	}
	if !exhaustive {
		t.Error("expected exhaustive history")
	}
	if want := int64(1_700_000_010) * 1000; ms != want {
		t.Errorf("launch = %d, want %d", ms, want)
	}
	if got := rpc.CallCount("getSignaturesForAddress"); got != 3 {
		t.Errorf("expected 3 pages, got %d", got)
	}
}

func TestLaunchTime_PageCapIsNotExhaustive(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("mint", sigs(2500, 10))

	ms, exhaustive, err := solana.LaunchTime(context.Background(), rpc, "mint", 2)
	if err != nil {
		t.Fatalf("LaunchTime: %v", err)
	}
	if exhaustive {
		t.Error("expected truncated history")
	}
	// Oldest seen after two pages is the 2000th newest signature.
	if want := int64(1_700_000_000+10+500) * 1000; ms != want {
		t.Errorf("launch = %d, want %d", ms, want)
	}
}

func TestLaunchTime_FallsBackToBlockTime(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("mint", []solana.SignatureInfo{{Signature: "only", Slot: 42}})
	rpc.BlockTimes[42] = 1_690_000_000

	ms, exhaustive, err := solana.LaunchTime(context.Background(), rpc, "mint", 0)
	if err != nil {
		t.Fatalf("LaunchTime: %v", err)
	}
	if !exhaustive || ms != 1_690_000_000_000 {
		t.Errorf("got ms=%d exhaustive=%v", ms, exhaustive)
	}
}

func TestLaunchTime_NoHistory(t *testing.T) {
	ms, exhaustive, err := solana.LaunchTime(context.Background(), stub.NewRPCClient(), "mint", 0)
	if err != nil || ms != 0 || !exhaustive {
		t.Errorf("got ms=%d exhaustive=%v err=%v", ms, exhaustive, err)
	}
}
