package sqlite3

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/swiftie-vault/eastereggs/media"
	"github.com/swiftie-vault/eastereggs/thread"
)

type BackfillReport struct {
	CommentsScanned   int `json:"commentsScanned"`
	CommentsRewritten int `json:"commentsRewritten"`
	EggsScanned       int `json:"eggsScanned"`
	EggsRewritten     int `json:"eggsRewritten"`
}

type commentRewrite struct {
	id       string
	parentID string
	content  string
}

type imageRewrite struct {
	id        string
	canonical string
}

// Backfill moves legacy reply markers into the parent column and rewrites
// every egg's image field as a canonical JSON array. With dryRun set nothing
// is written and the report shows what would change.
func Backfill(ctx context.Context, db *sql.DB, dryRun bool) (*BackfillReport, error) {
	var report BackfillReport

	comments, err := legacyReplies(ctx, db, &report)
	if err != nil {
		return nil, err
	}

	images, err := nonCanonicalImages(ctx, db, &report)
	if err != nil {
		return nil, err
	}

	report.CommentsRewritten = len(comments)
	report.EggsRewritten = len(images)

	if dryRun {
		slog.InfoContext(ctx, "backfill dry run", "report", report)

		return &report, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, tx)

	for _, c := range comments {
		_, err = sq.Update(tableComments).
			Set(commentFieldParentCommentID, c.parentID).
			Set(commentFieldContent, c.content).
			Where(sq.Eq{commentFieldID: c.id}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to rewrite comment %q: %w", c.id, err)
		}
	}

	for _, img := range images {
		_, err = sq.Update(tableEggs).
			Set(eggFieldImageURL, img.canonical).
			Where(sq.Eq{eggFieldID: img.id}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to rewrite images of easter egg %q: %w", img.id, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "backfill completed", "report", report)

	return &report, nil
}

func legacyReplies(ctx context.Context, db *sql.DB, report *BackfillReport) ([]commentRewrite, error) {
	rows, err := sq.Select(commentFieldID, commentFieldContent).
		From(tableComments).
		Where(sq.Or{
			sq.Eq{commentFieldParentCommentID: nil},
			sq.Eq{commentFieldParentCommentID: ""},
		}).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	defer closeRows(ctx, rows)

	rewrites := make([]commentRewrite, 0)

	for rows.Next() {
		var id, content string

		err := rows.Scan(&id, &content)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		report.CommentsScanned++

		parentID, body, ok := thread.ParseReplyMarker(content)
		if !ok {
			continue
		}

		rewrites = append(rewrites, commentRewrite{id: id, parentID: parentID, content: body})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate comment rows: %w", err)
	}

	return rewrites, nil
}

func nonCanonicalImages(ctx context.Context, db *sql.DB, report *BackfillReport) ([]imageRewrite, error) {
	rows, err := sq.Select(eggFieldID, eggFieldImageURL).
		From(tableEggs).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query easter eggs: %w", err)
	}

	defer closeRows(ctx, rows)

	rewrites := make([]imageRewrite, 0)

	for rows.Next() {
		var (
			id  string
			raw sql.NullString
		)

		err := rows.Scan(&id, &raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan easter egg: %w", err)
		}

		report.EggsScanned++

		canonical := media.NewImageURLs(raw.String).Canonical()
		if raw.Valid && raw.String == canonical {
			continue
		}

		rewrites = append(rewrites, imageRewrite{id: id, canonical: canonical})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate easter egg rows: %w", err)
	}

	return rewrites, nil
}
