// Package queue is the durable, append-only store of requests waiting for delivery.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/webtrekk/webtrekk-go/client/data"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"gorm.io/gorm"
)

// sqlite caps the number of bound variables per statement, so id lists are deleted in chunks.
const deleteChunkSize = 500

type Queue struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue persists req together with its custom params in a single transaction and returns the
// id assigned to req. Enqueueing a request whose RequestId is already stored is a no-op that
// returns the existing id.
func (q *Queue) Enqueue(ctx context.Context, req data.TrackRequest, params []data.CustomParam) (uint64, error) {
	if req.RequestId == "" {
		req.RequestId = uuid.Must(uuid.NewRandom()).String()
	}
	if req.TimeStamp == 0 {
		req.TimeStamp = time.Now().UnixMilli()
	}
	req.Id = 0

	id, err := tctx.RetryingDbFunctionWithResult(func() (uint64, error) {
		var id uint64
		err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing data.TrackRequest
			err := tx.Where("request_id = ?", req.RequestId).Take(&existing).Error
			if err == nil {
				id = existing.Id
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			row := req
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			if len(params) > 0 {
				rows := lo.Map(params, func(p data.CustomParam, _ int) data.CustomParam {
					return data.CustomParam{TrackId: row.Id, ParamKey: p.ParamKey, ParamValue: p.ParamValue}
				})
				if err := tx.Create(&rows).Error; err != nil {
					return err
				}
			}
			id = row.Id
			return nil
		})
		return id, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue track request: %w", err)
	}
	return id, nil
}

// PeekBatch returns up to limit of the oldest pending requests with their custom params.
// Nothing is removed.
func (q *Queue) PeekBatch(ctx context.Context, limit int) ([]data.DataTrack, error) {
	if limit <= 0 {
		return nil, nil
	}
	batch, err := tctx.RetryingDbFunctionWithResult(func() ([]data.DataTrack, error) {
		var batch []data.DataTrack
		err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var requests []data.TrackRequest
			if err := tx.Order("id asc").Limit(limit).Find(&requests).Error; err != nil {
				return err
			}
			if len(requests) == 0 {
				return nil
			}
			ids := lo.Map(requests, func(r data.TrackRequest, _ int) uint64 { return r.Id })
			var params []data.CustomParam
			if err := tx.Where("track_id IN ?", ids).Order("id asc").Find(&params).Error; err != nil {
				return err
			}
			byTrack := lo.GroupBy(params, func(p data.CustomParam) uint64 { return p.TrackId })
			batch = make([]data.DataTrack, 0, len(requests))
			for _, r := range requests {
				batch = append(batch, data.DataTrack{TrackRequest: r, CustomParams: byTrack[r.Id]})
			}
			return nil
		})
		return batch, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending track requests: %w", err)
	}
	return batch, nil
}

// MarkSent removes delivered requests and their custom params.
func (q *Queue) MarkSent(ctx context.Context, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := tctx.RetryingDbFunction(func() error {
		return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return deleteByIds(tx, ids)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to remove sent track requests: %w", err)
	}
	return nil
}

// DeleteOlderThan removes every request created before cutoff, sent or not, and returns how
// many requests were removed.
func (q *Queue) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := tctx.RetryingDbFunctionWithResult(func() (int64, error) {
		var deleted int64
		err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var ids []uint64
			if err := tx.Model(&data.TrackRequest{}).Where("time_stamp < ?", cutoff.UnixMilli()).Pluck("id", &ids).Error; err != nil {
				return err
			}
			deleted = int64(len(ids))
			return deleteByIds(tx, ids)
		})
		return deleted, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired track requests: %w", err)
	}
	return deleted, nil
}

// Count returns the number of pending requests.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	var count int64
	err := tctx.RetryingDbFunction(func() error {
		return q.db.WithContext(ctx).Model(&data.TrackRequest{}).Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count track requests: %w", err)
	}
	return count, nil
}

// Clear drops every pending request.
func (q *Queue) Clear(ctx context.Context) error {
	err := tctx.RetryingDbFunction(func() error {
		return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("1 = 1").Delete(&data.CustomParam{}).Error; err != nil {
				return err
			}
			return tx.Where("1 = 1").Delete(&data.TrackRequest{}).Error
		})
	})
	if err != nil {
		return fmt.Errorf("failed to clear track requests: %w", err)
	}
	return nil
}

func deleteByIds(tx *gorm.DB, ids []uint64) error {
	for _, chunk := range lo.Chunk(ids, deleteChunkSize) {
		if err := tx.Where("track_id IN ?", chunk).Delete(&data.CustomParam{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", chunk).Delete(&data.TrackRequest{}).Error; err != nil {
			return err
		}
	}
	return nil
}
