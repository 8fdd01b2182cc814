package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cybersecbot/internal/campaign"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Put inserts or replaces the campaign keyed by its id
func (s *Store) Put(ctx context.Context, c campaign.Campaign) error {
	row, err := toRow(&c)
	if err != nil {
		return fmt.Errorf("put campaign: %w", err)
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put campaign %s: %w", c.ID, err)
	}
	return nil
}

// Insert creates a campaign and fails with campaign.ErrExists when the id
// is already present, whatever its state
func (s *Store) Insert(ctx context.Context, c campaign.Campaign) error {
	row, err := toRow(&c)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&campaignRow{}).Where("id = ?", c.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("insert campaign %s: %w", c.ID, err)
		}
		if count > 0 {
			return campaign.ErrExists
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert campaign %s: %w", c.ID, err)
		}
		return nil
	})
}

// Get returns the campaign with the given id, or campaign.ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (campaign.Campaign, error) {
	var row campaignRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return campaign.Campaign{}, campaign.ErrNotFound
	}
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return fromRow(&row)
}

// GetAllActive returns every active campaign, earliest target first.
// Rows that cannot be decoded are logged and left out
func (s *Store) GetAllActive(ctx context.Context) ([]campaign.Campaign, error) {
	var rows []campaignRow
	err := s.db.WithContext(ctx).
		Where("state = ?", string(campaign.Active)).
		Order("target_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get active campaigns: %w", err)
	}
	campaigns := make([]campaign.Campaign, 0, len(rows))
	for i := range rows {
		c, err := fromRow(&rows[i])
		if err != nil {
			// A corrupt row must not hold back the others
			log.Error().Err(err).Msg(fmt.Sprintf("Skipping unreadable campaign %s", rows[i].ID))
			continue
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// Update reads the campaign, applies fn and writes the result back in a
// single transaction. When fn fails nothing is written and its error is
// returned as is
func (s *Store) Update(ctx context.Context, id string, fn func(c *campaign.Campaign) error) (campaign.Campaign, error) {
	var updated campaign.Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row campaignRow
		err := tx.Where("id = ?", id).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return campaign.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update campaign %s: %w", id, err)
		}
		c, err := fromRow(&row)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.ID = id
		newRow, err := toRow(&c)
		if err != nil {
			return fmt.Errorf("update campaign %s: %w", id, err)
		}
		if err := tx.Save(&newRow).Error; err != nil {
			return fmt.Errorf("update campaign %s: %w", id, err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return campaign.Campaign{}, err
	}
	return updated, nil
}

// Delete removes a campaign. Unknown ids are not an error
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&campaignRow{}).Error; err != nil {
		return fmt.Errorf("delete campaign %s: %w", id, err)
	}
	return nil
}

// DeleteClosedBefore purges the closed campaigns that closed before t and
// returns how many were removed
func (s *Store) DeleteClosedBefore(ctx context.Context, t time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state = ? AND closed_at < ?", string(campaign.Closed), t.UTC()).
		Delete(&campaignRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete closed campaigns: %w", result.Error)
	}
	return result.RowsAffected, nil
}
