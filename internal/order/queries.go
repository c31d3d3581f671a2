package order

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/skborders/internal/db"
	"github.com/wellywell/skborders/internal/skb"
	"github.com/wellywell/skborders/internal/storage"
	"github.com/wellywell/skborders/internal/types"
)

func (o *Orchestrator) GetOrder(ctx context.Context, orderID int) (*types.Order, error) {
	return o.Orders.Get(ctx, orderID)
}

func (o *Orchestrator) ListOrders(ctx context.Context, limit int, offset int) ([]types.Order, error) {
	return o.Orders.List(ctx, limit, offset)
}

// FetchResult asks the partner for the order's result right now. Nothing is
// stored and nothing is retried; a result that is not ready yields ErrNotReady.
func (o *Orchestrator) FetchResult(ctx context.Context, orderID int, format skb.Format) (*skb.Result, error) {
	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsSendRequestToSKB {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrNotSubmitted)
	}
	result, err := o.Partner.FetchResult(ctx, order.UUID, format)
	if err != nil {
		return nil, err
	}
	if !result.Ready {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrNotReady)
	}
	return result, nil
}

// Document returns the stored result document of the order.
func (o *Orchestrator) Document(ctx context.Context, orderID int) (*storage.Object, error) {
	files, err := o.Orders.Files(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if _, err := o.Orders.Get(ctx, orderID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("order %d: %w", orderID, db.ErrFileNotFound)
	}
	f := files[len(files)-1]
	obj, err := o.Objects.GetDocument(ctx, f.ObjectKey)
	if err != nil {
		return nil, err
	}
	if obj.Filename == "" {
		obj.Filename = f.Filename
	}
	if obj.ContentType == "" {
		obj.ContentType = f.ContentType
	}
	return obj, nil
}

// Links returns download links for every stored document of the order.
func (o *Orchestrator) Links(ctx context.Context, orderID int) ([]string, error) {
	files, err := o.Orders.Files(ctx, orderID)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(files))
	for _, f := range files {
		link, err := o.Objects.Link(ctx, f.ObjectKey, o.cfg.LinkTTL)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// Result is the captured result with file links, the same view the
// downstream system receives.
func (o *Orchestrator) Result(ctx context.Context, orderID int) (*types.Delivery, error) {
	order, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.delivery(ctx, order)
}

func (o *Orchestrator) delivery(ctx context.Context, order *types.Order) (*types.Delivery, error) {
	links, err := o.Links(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &types.Delivery{
		OrderID:      order.ID,
		UUID:         order.UUID,
		ResponseData: order.ResponseData,
		Errors:       order.Errors,
		FileLinks:    links,
	}, nil
}

func (o *Orchestrator) ListKinds(ctx context.Context) ([]types.OrderKind, error) {
	return o.Kinds.List(ctx)
}

// SyncKinds refreshes the order kind reference from the partner.
func (o *Orchestrator) SyncKinds(ctx context.Context) ([]types.OrderKind, error) {
	remote, err := o.Partner.GetKinds(ctx)
	if err != nil {
		return nil, err
	}
	kinds := make([]types.OrderKind, 0, len(remote))
	for _, k := range remote {
		kinds = append(kinds, types.OrderKind{Code: k.Code, Name: k.Name})
	}
	if err := o.Kinds.Upsert(ctx, kinds); err != nil {
		return nil, err
	}
	logger.WithField("kinds", len(kinds)).Info("Order kinds synchronised")
	return o.Kinds.List(ctx)
}
