package repository

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
)

const (
	shopsDataRange = "Shops!A2:K"
	shopsFullRange = "Shops!A1"
	shopsSheet     = "Shops"
)

type ShopsRepository struct {
	client *sheets.Client
}

func NewShopsRepository(client *sheets.Client) *ShopsRepository {
	return &ShopsRepository{client: client}
}

func (r *ShopsRepository) ListActive(ctx context.Context) ([]models.ShopInfo, error) {
	rows, err := r.client.Read(ctx, shopsDataRange)
	if err != nil {
		return nil, err
	}
	var shops []models.ShopInfo
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		shop := models.ShopInfoFromRow(row)
		if shop.IsActive {
			shops = append(shops, shop)
		}
	}
	return shops, nil
}

func (r *ShopsRepository) GetShop(ctx context.Context, shopId string) (*models.ShopInfo, error) {
	shops, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range shops {
		if strings.EqualFold(shops[i].ShopId, shopId) {
			return &shops[i], nil
		}
	}
	return nil, nil
}

func (r *ShopsRepository) SaveAll(ctx context.Context, shops []models.ShopInfo) error {
	rows := make([][]string, 0, len(shops)+1)
	rows = append(rows, models.ShopHeaders)
	for i := range shops {
		rows = append(rows, shops[i].ToRow())
	}
	if err := r.client.Clear(ctx, shopsSheet); err != nil {
		return err
	}
	return r.client.Write(ctx, shopsFullRange, rows)
}
