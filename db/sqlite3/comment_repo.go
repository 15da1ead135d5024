package sqlite3

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/swiftie-vault/eastereggs/discuss"
)

const tableComments = "comments"

type CommentRepository struct {
	db *sql.DB
}

var _ discuss.CommentRepository = (*CommentRepository)(nil)

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const (
	commentFieldID              = "id"
	commentFieldEggID           = "egg_id"
	commentFieldAuthorID        = "author_id"
	commentFieldParentCommentID = "parent_comment_id"
	commentFieldContent         = "content"
	commentFieldCreatedAt       = "created_at"
)

func commentColumns() []string {
	return []string{
		commentFieldID,
		commentFieldEggID,
		commentFieldAuthorID,
		commentFieldParentCommentID,
		commentFieldContent,
		commentFieldCreatedAt,
	}
}

// selectComments joins the author so each comment carries a username.
func selectComments() sq.SelectBuilder {
	return sq.Select(
		"c."+commentFieldID,
		"c."+commentFieldEggID,
		"c."+commentFieldAuthorID,
		"COALESCE(u."+userFieldUsername+", '')",
		"c."+commentFieldParentCommentID,
		"c."+commentFieldContent,
		"c."+commentFieldCreatedAt,
	).
		From(tableComments + " c").
		LeftJoin(tableUsers + " u ON u." + userFieldID + " = c." + commentFieldAuthorID)
}

func scanComment(row sq.RowScanner) (*discuss.Comment, error) {
	var comment discuss.Comment

	err := row.Scan(
		&comment.ID,
		&comment.EggID,
		&comment.AuthorID,
		&comment.AuthorUsername,
		&comment.ParentCommentID,
		&comment.Content,
		&comment.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &comment, nil
}

func (repo *CommentRepository) Insert(ctx context.Context, comment *discuss.Comment) error {
	q := sq.Insert(tableComments).
		Columns(commentColumns()...).
		Values(
			comment.ID,
			comment.EggID,
			comment.AuthorID,
			comment.ParentCommentID,
			comment.Content,
			comment.CreatedAt,
		)

	q = q.RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *CommentRepository) Find(ctx context.Context, commentID string) (*discuss.Comment, error) {
	q := selectComments().
		Where(sq.Eq{"c." + commentFieldID: commentID}).
		RunWith(repo.db)

	return queryRow(ctx, q, scanComment, discuss.CommentNotFoundError{ID: commentID})
}

func (repo *CommentRepository) List(
	ctx context.Context,
	params *discuss.ListCommentsParams,
) ([]*discuss.Comment, error) {
	query := selectComments().
		OrderBy("c."+commentFieldCreatedAt+" DESC", "c."+commentFieldID+" DESC")

	if params != nil && params.EggID != "" {
		query = query.Where(sq.Eq{"c." + commentFieldEggID: params.EggID})
	}

	query = query.RunWith(repo.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer closeRows(ctx, rows)

	comments := make([]*discuss.Comment, 0)

	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment failed: %w", err)
		}

		comments = append(comments, comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return comments, nil
}

func (repo *CommentRepository) Count(ctx context.Context, eggID string) (int, error) {
	q := sq.Select("COUNT(*)").
		From(tableComments).
		Where(sq.Eq{commentFieldEggID: eggID}).
		RunWith(repo.db)

	var count int

	err := q.QueryRowContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}

	return count, nil
}
