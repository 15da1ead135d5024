package sqlite3

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
)

const tableEggs = "eggs"

type EggRepository struct {
	db *sql.DB
}

var _ eggs.EggRepository = (*EggRepository)(nil)

func NewEggRepository(db *sql.DB) *EggRepository {
	return &EggRepository{db: db}
}

const (
	eggFieldID          = "id"
	eggFieldAuthorID    = "author_id"
	eggFieldTitle       = "title"
	eggFieldDescription = "description"
	eggFieldAlbum       = "album"
	eggFieldMediaType   = "media_type"
	eggFieldClueType    = "clue_type"
	eggFieldImageURL    = "image_url"
	eggFieldVideoURL    = "video_url"
	eggFieldCreatedAt   = "created_at"
	eggFieldUpdatedAt   = "updated_at"

	eggUpvotesCount  = "upvotes_count"
	eggCommentsCount = "comments_count"
)

func eggColumns() []string {
	return []string{
		eggFieldID,
		eggFieldAuthorID,
		eggFieldTitle,
		eggFieldDescription,
		eggFieldAlbum,
		eggFieldMediaType,
		eggFieldClueType,
		eggFieldImageURL,
		eggFieldVideoURL,
		eggFieldCreatedAt,
		eggFieldUpdatedAt,
	}
}

// selectEggs reads eggs with the author's username and the like and comment
// counts derived from their tables.
func selectEggs() sq.SelectBuilder {
	columns := make([]string, 0, len(eggColumns())+3)

	for _, column := range eggColumns() {
		columns = append(columns, "e."+column)
	}

	columns = append(columns,
		"COALESCE(u."+userFieldUsername+", '')",
		fmt.Sprintf(
			"(SELECT COUNT(*) FROM %s l WHERE l.%s = '%s' AND l.%s = e.%s) AS %s",
			tableLikes, likeFieldTargetType, likes.TargetTypeEgg, likeFieldTargetID, eggFieldID, eggUpvotesCount,
		),
		fmt.Sprintf(
			"(SELECT COUNT(*) FROM %s c WHERE c.%s = e.%s) AS %s",
			tableComments, commentFieldEggID, eggFieldID, eggCommentsCount,
		),
	)

	return sq.Select(columns...).
		From(tableEggs + " e").
		LeftJoin(tableUsers + " u ON u." + userFieldID + " = e." + eggFieldAuthorID)
}

func scanEgg(row sq.RowScanner) (*eggs.Egg, error) {
	var egg eggs.Egg

	err := row.Scan(
		&egg.ID,
		&egg.AuthorID,
		&egg.Title,
		&egg.Description,
		&egg.Album,
		&egg.MediaType,
		&egg.ClueType,
		&egg.ImageURLs,
		&egg.VideoURL,
		&egg.CreatedAt,
		&egg.UpdatedAt,
		&egg.AuthorUsername,
		&egg.UpvotesCount,
		&egg.CommentsCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &egg, nil
}

func (repo *EggRepository) Insert(ctx context.Context, egg *eggs.Egg) error {
	q := sq.Insert(tableEggs).
		Columns(eggColumns()...).
		Values(
			egg.ID,
			egg.AuthorID,
			egg.Title,
			egg.Description,
			egg.Album,
			egg.MediaType,
			egg.ClueType,
			egg.ImageURLs,
			egg.VideoURL,
			egg.CreatedAt,
			egg.UpdatedAt,
		)

	q = q.RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *EggRepository) Find(ctx context.Context, eggID string) (*eggs.Egg, error) {
	q := selectEggs().
		Where(sq.Eq{"e." + eggFieldID: eggID}).
		RunWith(repo.db)

	return queryRow(ctx, q, scanEgg, eggs.EggNotFoundError{ID: eggID})
}

func (repo *EggRepository) Update(ctx context.Context, egg *eggs.Egg) error {
	q := sq.Update(tableEggs).
		SetMap(map[string]any{
			eggFieldTitle:       egg.Title,
			eggFieldDescription: egg.Description,
			eggFieldAlbum:       egg.Album,
			eggFieldMediaType:   egg.MediaType,
			eggFieldClueType:    egg.ClueType,
			eggFieldImageURL:    egg.ImageURLs,
			eggFieldVideoURL:    egg.VideoURL,
			eggFieldUpdatedAt:   egg.UpdatedAt,
		}).
		Where(sq.Eq{eggFieldID: egg.ID}).
		RunWith(repo.db)

	updated, err := execRows(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to update easter egg: %w", err)
	}

	if updated == 0 {
		return eggs.EggNotFoundError{ID: egg.ID}
	}

	return nil
}

func (repo *EggRepository) Delete(ctx context.Context, eggID string) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, tx)

	cascades := []sq.DeleteBuilder{
		sq.Delete(tableLikes).Where(sq.And{
			sq.Eq{likeFieldTargetType: likes.TargetTypeComment},
			sq.Expr(
				likeFieldTargetID+" IN (SELECT "+commentFieldID+" FROM "+tableComments+" WHERE "+commentFieldEggID+" = ?)",
				eggID,
			),
		}),
		sq.Delete(tableLikes).Where(sq.Eq{likeFieldTargetType: likes.TargetTypeEgg, likeFieldTargetID: eggID}),
		sq.Delete(tableComments).Where(sq.Eq{commentFieldEggID: eggID}),
	}

	for _, q := range cascades {
		_, err = q.RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to exec cascade delete: %w", err)
		}
	}

	deleted, err := execRows(ctx, sq.Delete(tableEggs).
		Where(sq.Eq{eggFieldID: eggID}).
		RunWith(tx))
	if err != nil {
		return fmt.Errorf("failed to delete easter egg: %w", err)
	}

	if deleted == 0 {
		return eggs.EggNotFoundError{ID: eggID}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (repo *EggRepository) List(ctx context.Context, params eggs.ListParams) ([]*eggs.Egg, error) {
	query := selectEggs()

	if params.Album != "" {
		query = query.Where(sq.Eq{"e." + eggFieldAlbum: params.Album})
	}

	if params.AuthorID != "" {
		query = query.Where(sq.Eq{"e." + eggFieldAuthorID: params.AuthorID})
	}

	if params.Query != "" {
		pattern := "%" + escapeLike(strings.ToLower(params.Query)) + "%"

		query = query.Where(sq.Or{
			sq.Expr("LOWER(e."+eggFieldTitle+") LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("LOWER(e."+eggFieldDescription+") LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("LOWER(e."+eggFieldAlbum+") LIKE ? ESCAPE '\\'", pattern),
		})
	}

	if params.LikedBy != "" {
		query = query.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM "+tableLikes+" lb WHERE lb."+likeFieldTargetType+" = ? AND lb."+likeFieldTargetID+" = e."+eggFieldID+" AND lb."+likeFieldUserID+" = ?)",
			likes.TargetTypeEgg, params.LikedBy,
		))
	}

	switch params.Sort {
	case eggs.SortLikes:
		query = query.OrderBy(eggUpvotesCount+" DESC", "e."+eggFieldCreatedAt+" DESC")
	case eggs.SortComments:
		query = query.OrderBy(eggCommentsCount+" DESC", "e."+eggFieldCreatedAt+" DESC")
	default:
		query = query.OrderBy("e."+eggFieldCreatedAt+" DESC", "e."+eggFieldID+" DESC")
	}

	query = query.RunWith(repo.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer closeRows(ctx, rows)

	result := make([]*eggs.Egg, 0)

	for rows.Next() {
		egg, err := scanEgg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan easter egg failed: %w", err)
		}

		result = append(result, egg)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return result, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
