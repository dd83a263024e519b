package repository

import (
	"context"
	"errors"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository is the read-only device/service catalog boundary.
type CatalogRepository interface {
	ListDevices(ctx context.Context) ([]domain.Device, error)
	GetDevice(ctx context.Context, id string) (*domain.Device, error)
	ListServicesForCategory(ctx context.Context, category string) ([]domain.RepairService, error)
}

type PGCatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PGCatalogRepository{db: db}
}

func (r *PGCatalogRepository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.Query(ctx, `SELECT id, brand, category, model, year, difficulty, common_issues, average_repair_cost FROM devices ORDER BY brand, model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]domain.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

func (r *PGCatalogRepository) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	row := r.db.QueryRow(ctx, `SELECT id, brand, category, model, year, difficulty, common_issues, average_repair_cost FROM devices WHERE id=$1`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *PGCatalogRepository) ListServicesForCategory(ctx context.Context, category string) ([]domain.RepairService, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, category, base_price, estimated_minutes, difficulty, warranty_days, compatible_device_types FROM repair_services WHERE $1 = ANY(compatible_device_types) ORDER BY base_price`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.RepairService, 0)
	for rows.Next() {
		var s domain.RepairService
		var difficulty string
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Category, &s.BasePrice, &s.EstimatedMinutes, &difficulty, &s.WarrantyDays, &s.CompatibleDeviceTypes); err != nil {
			return nil, err
		}
		s.Difficulty = domain.ParseDifficulty(difficulty)
		services = append(services, s)
	}
	return services, rows.Err()
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	var difficulty string
	if err := row.Scan(&d.ID, &d.Brand, &d.Category, &d.Model, &d.Year, &difficulty, &d.CommonIssues, &d.AverageRepairCost); err != nil {
		return nil, err
	}
	d.Difficulty = domain.ParseDifficulty(difficulty)
	return &d, nil
}

var _ CatalogRepository = (*PGCatalogRepository)(nil)
