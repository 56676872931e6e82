package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"webupload/internal/services"
	"webupload/internal/wire"
)

// OptionRecord is a cached account option value reported by a worker.
type OptionRecord struct {
	AccountID  string
	Name       string
	MediaIndex int32
	Value      wire.Variant
	UpdatedAt  time.Time
}

// SaveOption caches an OptionValueChanged report for accountID.
func (s *Store) SaveOption(ctx context.Context, accountID string, change wire.OptionValueChanged) error {
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(change.Name) == "" {
		return services.Wrap(services.ErrValidation, "jobstore", "save option", "account and option name are required", nil)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO account_options (account_id, name, media_index, value_type, value, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (account_id, name, media_index) DO UPDATE SET
             value_type = excluded.value_type,
             value = excluded.value,
             updated_at = excluded.updated_at`,
		accountID, change.Name, change.MediaIndex, int(change.Value.Type),
		encodeVariant(change.Value), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save option %s: %w", change.Name, err)
	}
	return nil
}

// ListOptions returns the cached options of accountID ordered by name.
func (s *Store) ListOptions(ctx context.Context, accountID string) ([]OptionRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, media_index, value_type, value, updated_at
         FROM account_options WHERE account_id = ? ORDER BY name, media_index`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var out []OptionRecord
	for rows.Next() {
		var (
			name       string
			mediaIndex int32
			valueType  int
			raw        sql.NullString
			updatedRaw string
		)
		if err := rows.Scan(&name, &mediaIndex, &valueType, &raw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		record := OptionRecord{
			AccountID:  accountID,
			Name:       name,
			MediaIndex: mediaIndex,
			Value:      decodeVariant(wire.VariantType(valueType), raw.String),
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			record.UpdatedAt = updated
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func encodeVariant(v wire.Variant) any {
	switch v.Type {
	case wire.VariantString:
		return v.Str
	case wire.VariantInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case wire.VariantBool:
		return strconv.FormatBool(v.Bool)
	case wire.VariantFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	default:
		return nil
	}
}

func decodeVariant(t wire.VariantType, raw string) wire.Variant {
	switch t {
	case wire.VariantString:
		return wire.StringVariant(raw)
	case wire.VariantInt:
		n, _ := strconv.ParseInt(raw, 10, 32)
		return wire.IntVariant(int32(n))
	case wire.VariantBool:
		b, _ := strconv.ParseBool(raw)
		return wire.BoolVariant(b)
	case wire.VariantFloat:
		f, _ := strconv.ParseFloat(raw, 32)
		return wire.FloatVariant(float32(f))
	default:
		return wire.Variant{}
	}
}
