package sqlite3

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/swiftie-vault/eastereggs/likes"
)

const tableLikes = "likes"

type LikeRepository struct {
	db *sql.DB
}

var _ likes.LikeRepository = (*LikeRepository)(nil)

func NewLikeRepository(db *sql.DB) *LikeRepository {
	return &LikeRepository{db: db}
}

const (
	likeFieldTargetType = "target_type"
	likeFieldTargetID   = "target_id"
	likeFieldUserID     = "user_id"
	likeFieldCreatedAt  = "created_at"
)

func likeColumns() []string {
	return []string{
		likeFieldTargetType,
		likeFieldTargetID,
		likeFieldUserID,
		likeFieldCreatedAt,
	}
}

func scanLike(row sq.RowScanner) (*likes.Like, error) {
	var like likes.Like

	err := row.Scan(
		&like.TargetType,
		&like.TargetID,
		&like.UserID,
		&like.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan like row: %w", err)
	}

	return &like, nil
}

func (repo *LikeRepository) Insert(ctx context.Context, like *likes.Like) (bool, error) {
	q := sq.Insert(tableLikes).
		Columns(likeColumns()...).
		Values(like.TargetType, like.TargetID, like.UserID, like.CreatedAt).
		Suffix("ON CONFLICT(target_type, target_id, user_id) DO NOTHING").
		RunWith(repo.db)

	inserted, err := execRows(ctx, q)
	if err != nil {
		return false, fmt.Errorf("failed to insert like: %w", err)
	}

	return inserted > 0, nil
}

func (repo *LikeRepository) Delete(
	ctx context.Context,
	targetType likes.TargetType,
	targetID string,
	userID string,
) (bool, error) {
	q := sq.Delete(tableLikes).
		Where(sq.Eq{
			likeFieldTargetType: targetType,
			likeFieldTargetID:   targetID,
			likeFieldUserID:     userID,
		}).
		RunWith(repo.db)

	deleted, err := execRows(ctx, q)
	if err != nil {
		return false, fmt.Errorf("failed to delete like: %w", err)
	}

	return deleted > 0, nil
}

// Toggle removes the like when present and inserts it otherwise, in one
// transaction.
func (repo *LikeRepository) Toggle(ctx context.Context, like *likes.Like) (bool, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, tx)

	deleted, err := execRows(ctx, sq.Delete(tableLikes).
		Where(sq.Eq{
			likeFieldTargetType: like.TargetType,
			likeFieldTargetID:   like.TargetID,
			likeFieldUserID:     like.UserID,
		}).
		RunWith(tx))
	if err != nil {
		return false, fmt.Errorf("failed to delete like: %w", err)
	}

	if deleted == 0 {
		_, err = execRows(ctx, sq.Insert(tableLikes).
			Columns(likeColumns()...).
			Values(like.TargetType, like.TargetID, like.UserID, like.CreatedAt).
			RunWith(tx))
		if err != nil {
			return false, fmt.Errorf("failed to insert like: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return deleted == 0, nil
}

func (repo *LikeRepository) Exists(
	ctx context.Context,
	targetType likes.TargetType,
	targetID string,
	userID string,
) (bool, error) {
	q := sq.Select("COUNT(*) > 0").
		From(tableLikes).
		Where(sq.Eq{
			likeFieldTargetType: targetType,
			likeFieldTargetID:   targetID,
			likeFieldUserID:     userID,
		}).
		RunWith(repo.db)

	var exists bool

	err := q.QueryRowContext(ctx).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}

	return exists, nil
}

func (repo *LikeRepository) Count(ctx context.Context, targetType likes.TargetType, targetID string) (int, error) {
	q := sq.Select("COUNT(*)").
		From(tableLikes).
		Where(sq.Eq{
			likeFieldTargetType: targetType,
			likeFieldTargetID:   targetID,
		}).
		RunWith(repo.db)

	var count int

	err := q.QueryRowContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}

	return count, nil
}

func (repo *LikeRepository) ListByTargets(
	ctx context.Context,
	targetType likes.TargetType,
	targetIDs []string,
) ([]*likes.Like, error) {
	result := make([]*likes.Like, 0)

	if len(targetIDs) == 0 {
		return result, nil
	}

	q := sq.Select(likeColumns()...).
		From(tableLikes).
		Where(sq.Eq{
			likeFieldTargetType: targetType,
			likeFieldTargetID:   targetIDs,
		}).
		OrderBy(likeFieldCreatedAt).
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}

	defer closeRows(ctx, rows)

	for rows.Next() {
		like, err := scanLike(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, like)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate like rows: %w", err)
	}

	return result, nil
}

func (repo *LikeRepository) ListTargetIDs(
	ctx context.Context,
	targetType likes.TargetType,
	userID string,
) ([]string, error) {
	q := sq.Select(likeFieldTargetID).
		From(tableLikes).
		Where(sq.Eq{
			likeFieldTargetType: targetType,
			likeFieldUserID:     userID,
		}).
		OrderBy(likeFieldCreatedAt + " DESC").
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked targets: %w", err)
	}

	defer closeRows(ctx, rows)

	targetIDs := make([]string, 0)

	for rows.Next() {
		var targetID string

		err := rows.Scan(&targetID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target id: %w", err)
		}

		targetIDs = append(targetIDs, targetID)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate target rows: %w", err)
	}

	return targetIDs, nil
}
