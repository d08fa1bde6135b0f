package database

import (
	"context"
)

// ProductRepository is the catalog gateway used by the EoX reconciler.
// GetProduct returns nil and no error when the product does not exist.
// UpsertWithAuditComment reports applied=false when the stored row carries an
// equal or newer eox_update_timestamp.
type ProductRepository interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetVendorID(ctx context.Context, name string) (int64, error)
	UpsertWithAuditComment(ctx context.Context, product *Product, comment string) (bool, error)
	GetProductCount(ctx context.Context) (int, error)
	GetRevisions(ctx context.Context, productID string) ([]Revision, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n Notification) (int64, error)
	GetRecentNotifications(ctx context.Context, limit int) ([]Notification, error)
}

var (
	_ ProductRepository      = (*ProductStore)(nil)
	_ NotificationRepository = (*NotificationStore)(nil)
)
