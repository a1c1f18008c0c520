package svcctx

import (
	"context"
	"testing"

	"github.com/jackzampolin/slate/internal/api"
	"github.com/jackzampolin/slate/internal/store"
)

func TestServicesFrom(t *testing.T) {
	t.Run("missing services", func(t *testing.T) {
		ctx := context.Background()
		if ServicesFrom(ctx) != nil {
			t.Error("expected nil services")
		}
		if StoreFrom(ctx) != nil {
			t.Error("expected nil store")
		}
		if LoggerFrom(ctx) == nil {
			t.Error("expected default logger")
		}
		if PrinterFrom(ctx).Format != api.DefaultOutput {
			t.Error("expected default printer")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		mem := store.NewMemoryStore()
		ctx := WithServices(context.Background(), &Services{Store: mem})
		if StoreFrom(ctx) != mem {
			t.Error("got different store than attached")
		}
		if ConfigFrom(ctx) != nil {
			t.Error("expected nil config without a manager")
		}
	})
}
