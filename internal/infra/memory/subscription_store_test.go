package memory

import (
	"context"
	"testing"

	"maihome-survey-service/internal/domain"
)

func TestSubscriptionStoreKeepsLinkOnReRegister(t *testing.T) {
	ctx := context.Background()
	store := NewSubscriptionStore()

	sub := domain.PushSubscription{Endpoint: "https://push/1", Keys: domain.SubscriptionKeys{P256dh: "p", Auth: "a"}, HouseID: "h1"}
	if err := store.Upsert(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sub.HouseID = ""
	sub.Keys.Auth = "a2"
	if err := store.Upsert(ctx, sub); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, _ := store.ListByHouses(ctx, []string{"h1"})
	if len(got) != 1 || got[0].Keys.Auth != "a2" {
		t.Fatalf("expected refreshed keys with link kept, got %+v", got)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected one subscription, got %d", n)
	}

	if err := store.UnlinkHouse(ctx, "h1"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if got, _ := store.ListByHouses(ctx, []string{"h1"}); len(got) != 0 {
		t.Fatalf("expected no linked subscriptions, got %+v", got)
	}

	ok, _ := store.Delete(ctx, "https://push/1")
	if !ok {
		t.Fatalf("expected delete to report removal")
	}
	if ok, _ := store.Delete(ctx, "https://push/1"); ok {
		t.Fatalf("second delete must report absence")
	}
}
