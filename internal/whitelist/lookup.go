package whitelist

import (
	"context"
	"fmt"

	"print-relay/internal/docstore"
)

// Collection holds one document per whitelisted number.
const Collection = "sms_whitelist"

// Document fields holding the number. FieldLegacyNumber is accepted on lookup only.
const (
	FieldPhoneNumber  = "phone_number"
	FieldLegacyNumber = "number"
)

// StoreLookup checks the whitelist collection of a document store.
type StoreLookup struct {
	store docstore.Store
}

// NewStoreLookup returns a Lookup over store.
func NewStoreLookup(store docstore.Store) *StoreLookup {
	return &StoreLookup{store: store}
}

// IsWhitelisted matches identity against phone_number, then the legacy number field.
func (l *StoreLookup) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, nil
	}
	for _, field := range []string{FieldPhoneNumber, FieldLegacyNumber} {
		id, _, err := l.store.FindOne(ctx, Collection, field, identity)
		if err != nil {
			return false, fmt.Errorf("whitelist: find by %s: %w", field, err)
		}
		if id != "" {
			return true, nil
		}
	}
	return false, nil
}

// Add stores identity under id in the whitelist collection.
func (l *StoreLookup) Add(ctx context.Context, id, identity string) error {
	if err := l.store.Set(ctx, Collection, id, docstore.Document{FieldPhoneNumber: identity}); err != nil {
		return fmt.Errorf("whitelist: add %s: %w", identity, err)
	}
	return nil
}
