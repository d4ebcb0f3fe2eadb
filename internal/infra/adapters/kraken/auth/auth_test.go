package auth

import (
	"encoding/base64"
	"sort"
	"sync"
	"testing"
	"time"
)

const (
	vectorSecret = "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="
	vectorNonce  = uint64(1616492376594)
	vectorPath   = "/0/private/AddOrder"
)

func decodedSecret(t *testing.T) []byte {
	t.Helper()
	secret, err := base64.StdEncoding.DecodeString(vectorSecret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	return secret
}

func TestSignFormBodyVector(t *testing.T) {
	body := []byte("nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25")
	got, err := Sign(decodedSecret(t), vectorPath, vectorNonce, body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
	if got != want {
		t.Fatalf("signature mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestSignJSONBodyVector(t *testing.T) {
	body := []byte(`{"ordertype":"limit","pair":"XBTUSD","price":"37500","type":"buy","volume":"1.25"}`)
	got, err := Sign(decodedSecret(t), vectorPath, vectorNonce, body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "oTOXlYtwCD1eL/j45C8gSWB49XQO1Sguv3nnScc8TTNpgmsnDvAA3yu6geyXXjGIsfCUEOzslsv4ugTZNsM7RA=="
	if got != want {
		t.Fatalf("signature mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	secret := decodedSecret(t)
	body := []byte("nonce=1&asset=XBT")
	first, err := Sign(secret, "/0/private/Balance", 1, body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := Sign(secret, "/0/private/Balance", 1, body)
		if again != first {
			t.Fatalf("signature changed between calls")
		}
	}
	other, _ := Sign(secret, "/0/private/Balance", 2, body)
	if other == first {
		t.Fatalf("different nonce must change the signature")
	}
}

func TestSignRejectsEmptyInputs(t *testing.T) {
	if _, err := Sign(nil, vectorPath, 1, nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := Sign(decodedSecret(t), "", 1, nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestClockNonceConcurrentStrictlyIncreasing(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	source := NewClockNonce(func() time.Time { return frozen })

	const workers = 16
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)
	all := make([]uint64, 0, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, source.Next())
			}
			for i := 1; i < len(local); i++ {
				if local[i] <= local[i-1] {
					t.Errorf("nonce not increasing within goroutine: %d after %d", local[i], local[i-1])
				}
			}
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, n := range all {
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate nonce %d", n)
		}
		seen[n] = struct{}{}
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	if all[0] != uint64(frozen.UnixMilli()) {
		t.Fatalf("first nonce should equal the clock, got %d", all[0])
	}
	if all[len(all)-1] != all[0]+workers*perWorker-1 {
		t.Fatalf("expected dense sequence, last=%d", all[len(all)-1])
	}
}

func TestClockNonceFollowsClockAndSurvivesRegression(t *testing.T) {
	current := time.UnixMilli(1000)
	source := NewClockNonce(func() time.Time { return current })

	if got := source.Next(); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
	current = time.UnixMilli(5000)
	if got := source.Next(); got != 5000 {
		t.Fatalf("expected clock jump to 5000, got %d", got)
	}
	current = time.UnixMilli(10)
	if got := source.Next(); got != 5001 {
		t.Fatalf("clock regression must not lower nonce, got %d", got)
	}
}

func TestSequenceNonce(t *testing.T) {
	source := NewSequenceNonce(42)
	if got := source.Next(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := source.Next(); got != 43 {
		t.Fatalf("expected 43, got %d", got)
	}
}
