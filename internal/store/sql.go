package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"publication/api/internal/blobstore"
	"publication/api/internal/document"
)

// SQLStore keeps documents in the tables created by the embedded migrations.
// Attachment bytes live in the blob store; rows only carry their keys.
type SQLStore struct {
	primitives
	listeners

	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB, blobs blobstore.Store) *SQLStore {
	return &SQLStore{primitives: primitives{blobs: blobs}, db: db, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Get loads the stored document, or returns a new empty one when ref is free.
func (s *SQLStore) Get(ctx context.Context, ref document.Ref) (*document.Document, error) {
	key := ref.String()
	sqlStr, args, err := s.qb().
		Select("locale", "title", "parent", "syntax", "content", "creator", "author", "hidden", "version", "updated_at").
		From("documents").
		Where(sq.Eq{"ref": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get %s: %w", key, err)
	}

	doc := document.New(ref)
	var hidden int
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&doc.Locale, &doc.Title, &doc.Parent, &doc.Syntax, &doc.Content,
		&doc.Creator, &doc.Author, &hidden, &doc.Version, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	doc.Hidden = hidden != 0
	doc.IsNew = false

	if err := s.loadObjects(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.loadAttachmentRows(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLStore) loadObjects(ctx context.Context, doc *document.Document) error {
	key := doc.Ref.String()
	sqlStr, args, err := s.qb().
		Select("class", "number").
		From("document_objects").
		Where(sq.Eq{"doc_ref": key}).
		OrderBy("class", "number").
		ToSql()
	if err != nil {
		return fmt.Errorf("build objects %s: %w", key, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("list objects %s: %w", key, err)
	}
	for rows.Next() {
		var (
			class  string
			number int
		)
		if err := rows.Scan(&class, &number); err != nil {
			rows.Close()
			return fmt.Errorf("scan object %s: %w", key, err)
		}
		doc.NewObjectAt(class, number)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("list objects %s: %w", key, err)
	}
	rows.Close()

	sqlStr, args, err = s.qb().
		Select("class", "number", "name", "value").
		From("object_properties").
		Where(sq.Eq{"doc_ref": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build properties %s: %w", key, err)
	}
	rows, err = s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("list properties %s: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			class, name, value string
			number             int
		)
		if err := rows.Scan(&class, &number, &name, &value); err != nil {
			return fmt.Errorf("scan property %s: %w", key, err)
		}
		obj := doc.ObjectAt(class, number)
		if obj == nil {
			obj = doc.NewObjectAt(class, number)
		}
		obj.Set(name, value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list properties %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) loadAttachmentRows(ctx context.Context, doc *document.Document) error {
	key := doc.Ref.String()
	sqlStr, args, err := s.qb().
		Select("filename", "mime_type", "size", "author", "created_at", "blob_key").
		From("attachments").
		Where(sq.Eq{"doc_ref": key}).
		OrderBy("filename").
		ToSql()
	if err != nil {
		return fmt.Errorf("build attachments %s: %w", key, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("list attachments %s: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		att := &document.Attachment{}
		if err := rows.Scan(&att.Filename, &att.MimeType, &att.Size, &att.Author, &att.Date, &att.Key); err != nil {
			return fmt.Errorf("scan attachment %s: %w", key, err)
		}
		doc.AddAttachment(att)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list attachments %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Exists(ctx context.Context, ref document.Ref) (bool, error) {
	return s.exists(ctx, s.db, ref.String())
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) exists(ctx context.Context, db queryRower, key string) (bool, error) {
	sqlStr, args, err := s.qb().Select("COUNT(*)").From("documents").Where(sq.Eq{"ref": key}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists %s: %w", key, err)
	}
	var count int
	if err := db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check document %s: %w", key, err)
	}
	return count > 0, nil
}

// Save writes doc and its objects in one transaction. A new document must
// not exist yet; an existing one must still be at doc.Version.
func (s *SQLStore) Save(ctx context.Context, doc *document.Document, opts SaveOptions) error {
	key := doc.Ref.String()
	now := s.now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.writeDocumentRow(ctx, tx, doc, now); err != nil {
		return err
	}
	// Blobs are content addressed; one written for a failed commit is
	// reused by the next save of the same bytes.
	if err := s.persistAttachments(ctx, doc); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if err := s.clearChildren(ctx, tx, key); err != nil {
		return err
	}
	if err := s.insertObjects(ctx, tx, doc); err != nil {
		return err
	}
	if err := s.insertAttachments(ctx, tx, doc, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save %s: %w", key, err)
	}

	doc.IsNew = false
	doc.Version++
	doc.UpdatedAt = now
	s.saved(ctx, doc, opts)
	return nil
}

func (s *SQLStore) writeDocumentRow(ctx context.Context, tx *sql.Tx, doc *document.Document, now time.Time) error {
	key := doc.Ref.String()
	if doc.IsNew {
		taken, err := s.exists(ctx, tx, key)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("save %s: %w", key, ErrVersionConflict)
		}
		sqlStr, args, err := s.qb().Insert("documents").
			Columns("ref", "wiki", "space", "name", "locale", "title", "parent", "syntax", "content", "creator", "author", "hidden", "version", "updated_at").
			Values(key, doc.Ref.Wiki, doc.Ref.Space, doc.Ref.Name, doc.Locale, doc.Title, doc.Parent, doc.Syntax, doc.Content, doc.Creator, doc.Author, boolToInt(doc.Hidden), doc.Version+1, now).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert document %s: %w", key, err)
		}
		return nil
	}

	sqlStr, args, err := s.qb().Update("documents").
		SetMap(map[string]any{
			"locale":     doc.Locale,
			"title":      doc.Title,
			"parent":     doc.Parent,
			"syntax":     doc.Syntax,
			"content":    doc.Content,
			"creator":    doc.Creator,
			"author":     doc.Author,
			"hidden":     boolToInt(doc.Hidden),
			"version":    sq.Expr("version + 1"),
			"updated_at": now,
		}).
		Where(sq.Eq{"ref": key, "version": doc.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update %s: %w", key, err)
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update document %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("save %s: %w", key, ErrVersionConflict)
	}
	return nil
}

func (s *SQLStore) clearChildren(ctx context.Context, tx *sql.Tx, key string) error {
	for _, table := range []string{"object_properties", "document_objects", "attachments"} {
		sqlStr, args, err := s.qb().Delete(table).Where(sq.Eq{"doc_ref": key}).ToSql()
		if err != nil {
			return fmt.Errorf("build clear %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("clear %s of %s: %w", table, key, err)
		}
	}
	return nil
}

func (s *SQLStore) insertObjects(ctx context.Context, tx *sql.Tx, doc *document.Document) error {
	key := doc.Ref.String()
	objects := s.qb().Insert("document_objects").Columns("doc_ref", "class", "number")
	props := s.qb().Insert("object_properties").Columns("doc_ref", "class", "number", "name", "value")
	var nObjects, nProps int
	for _, class := range doc.Classes() {
		for _, obj := range doc.Objects(class) {
			if obj == nil {
				continue
			}
			objects = objects.Values(key, class, obj.Number)
			nObjects++
			for _, name := range obj.Names() {
				props = props.Values(key, class, obj.Number, name, obj.Get(name))
				nProps++
			}
		}
	}
	if nObjects == 0 {
		return nil
	}
	if err := execInsert(ctx, tx, objects); err != nil {
		return fmt.Errorf("insert objects of %s: %w", key, err)
	}
	if nProps == 0 {
		return nil
	}
	if err := execInsert(ctx, tx, props); err != nil {
		return fmt.Errorf("insert properties of %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) insertAttachments(ctx context.Context, tx *sql.Tx, doc *document.Document, now time.Time) error {
	atts := doc.Attachments()
	if len(atts) == 0 {
		return nil
	}
	key := doc.Ref.String()
	q := s.qb().Insert("attachments").Columns("doc_ref", "filename", "mime_type", "size", "author", "created_at", "blob_key")
	for _, att := range atts {
		if att.Date.IsZero() {
			att.Date = now
		}
		q = q.Values(key, att.Filename, att.MimeType, att.Size, att.Author, att.Date.UTC(), att.Key)
	}
	if err := execInsert(ctx, tx, q); err != nil {
		return fmt.Errorf("insert attachments of %s: %w", key, err)
	}
	return nil
}

func execInsert(ctx context.Context, tx *sql.Tx, q sq.InsertBuilder) error {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, doc *document.Document) error {
	key := doc.Ref.String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.clearChildren(ctx, tx, key); err != nil {
		return err
	}
	sqlStr, args, err := s.qb().Delete("documents").Where(sq.Eq{"ref": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete %s: %w", key, err)
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	} else if affected == 0 {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", key, err)
	}

	s.deleted(ctx, doc.Ref)
	return nil
}

// Find joins one property row per equality so a single object has to
// satisfy all of them.
func (s *SQLStore) Find(ctx context.Context, q Query) ([]document.Ref, error) {
	names := make([]string, 0, len(q.Equals))
	for name := range q.Equals {
		names = append(names, name)
	}
	sort.Strings(names)

	sb := s.qb().
		Select("d.ref", "d.wiki", "d.space", "d.name").
		Distinct().
		From("document_objects o").
		Join("documents d ON d.ref = o.doc_ref")
	for i, name := range names {
		alias := fmt.Sprintf("p%d", i)
		sb = sb.Join(fmt.Sprintf(
			"object_properties %[1]s ON %[1]s.doc_ref = o.doc_ref AND %[1]s.class = o.class AND %[1]s.number = o.number AND %[1]s.name = ? AND %[1]s.value = ?",
			alias), name, q.Equals[name])
	}
	sb = sb.Where(sq.Eq{"o.class": q.Class})
	if q.Wiki != "" {
		sb = sb.Where(sq.Eq{"d.wiki": q.Wiki})
	}
	sqlStr, args, err := sb.OrderBy("d.ref").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}
	return s.queryRefs(ctx, sqlStr, args)
}

func (s *SQLStore) Refs(ctx context.Context, wiki string) ([]document.Ref, error) {
	sb := s.qb().Select("ref", "wiki", "space", "name").From("documents")
	if wiki != "" {
		sb = sb.Where(sq.Eq{"wiki": wiki})
	}
	sqlStr, args, err := sb.OrderBy("ref").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build refs: %w", err)
	}
	return s.queryRefs(ctx, sqlStr, args)
}

func (s *SQLStore) queryRefs(ctx context.Context, sqlStr string, args []any) ([]document.Ref, error) {
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query refs: %w", err)
	}
	defer rows.Close()

	var out []document.Ref
	for rows.Next() {
		var (
			key string
			ref document.Ref
		)
		if err := rows.Scan(&key, &ref.Wiki, &ref.Space, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query refs: %w", err)
	}
	return out, nil
}

// UniqueRef returns the first free reference among name, name_0, name_1, ...
func (s *SQLStore) UniqueRef(ctx context.Context, wiki, space, name string) (document.Ref, error) {
	for attempt := 0; ; attempt++ {
		ref := document.NewRef(wiki, space, candidateName(name, attempt))
		taken, err := s.exists(ctx, s.db, ref.String())
		if err != nil {
			return document.Ref{}, err
		}
		if !taken {
			return ref, nil
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
