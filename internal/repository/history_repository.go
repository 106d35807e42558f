package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go-alias-scanner/internal/models"

	"gorm.io/gorm"
)

// ErrTransferNotFound is returned when no transfer has the requested id
var ErrTransferNotFound = errors.New("transfer not found")

// HistoryRepository stores the scan audit log and transfer history in MySQL
type HistoryRepository struct {
	db *Database
}

func NewHistoryRepository(db *Database) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) RecordScan(ctx context.Context, record *models.ScanRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *HistoryRepository) ListScans(ctx context.Context, params models.FilterParams) ([]models.ScanRecord, error) {
	params.Normalize()

	query := r.db.WithContext(ctx).Model(&models.ScanRecord{})
	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}

	var records []models.ScanRecord
	err := query.Order("created_at DESC, scanID DESC").Limit(params.Limit).Offset(params.Offset).Find(&records).Error
	return records, err
}

func (r *HistoryRepository) SaveTransfer(ctx context.Context, record *models.TransferRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *HistoryRepository) GetTransfer(ctx context.Context, id string) (*models.TransferRecord, error) {
	var record models.TransferRecord
	err := r.db.WithContext(ctx).Where("transferID = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *HistoryRepository) ListTransfers(ctx context.Context, params models.FilterParams) ([]models.TransferRecord, error) {
	params.Normalize()

	query := r.db.WithContext(ctx).Model(&models.TransferRecord{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var records []models.TransferRecord
	err := query.Order("created_at DESC").Limit(params.Limit).Offset(params.Offset).Find(&records).Error
	return records, err
}

// MemoryHistory keeps history in process memory when no database is configured
type MemoryHistory struct {
	mu        sync.RWMutex
	scans     []models.ScanRecord
	transfers map[string]models.TransferRecord
	nextID    uint
	capacity  int
}

// NewMemoryHistory keeps at most capacity scan records; capacity <= 0 means 1000
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryHistory{transfers: make(map[string]models.TransferRecord), capacity: capacity}
}

func (m *MemoryHistory) RecordScan(ctx context.Context, record *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ScanID = m.nextID
	m.scans = append(m.scans, *record)
	if len(m.scans) > m.capacity {
		m.scans = m.scans[len(m.scans)-m.capacity:]
	}
	return nil
}

func (m *MemoryHistory) ListScans(ctx context.Context, params models.FilterParams) ([]models.ScanRecord, error) {
	params.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ScanRecord
	for i := len(m.scans) - 1; i >= 0; i-- {
		if params.Kind == "" || m.scans[i].Kind == params.Kind {
			out = append(out, m.scans[i])
		}
	}
	return page(out, params), nil
}

func (m *MemoryHistory) SaveTransfer(ctx context.Context, record *models.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[record.TransferID] = *record
	return nil
}

func (m *MemoryHistory) GetTransfer(ctx context.Context, id string) (*models.TransferRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return &record, nil
}

func (m *MemoryHistory) ListTransfers(ctx context.Context, params models.FilterParams) ([]models.TransferRecord, error) {
	params.Normalize()

	m.mu.RLock()
	out := make([]models.TransferRecord, 0, len(m.transfers))
	for _, record := range m.transfers {
		if params.Status == "" || record.Status == params.Status {
			out = append(out, record)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, params), nil
}

func page[T any](items []T, params models.FilterParams) []T {
	if params.Offset >= len(items) {
		return []T{}
	}
	items = items[params.Offset:]
	if len(items) > params.Limit {
		items = items[:params.Limit]
	}
	return items
}
