// Package firestore stores documents in Cloud Firestore through the v1 REST
// API.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	fs "google.golang.org/api/firestore/v1"

	"spendbook/internal/docstore"
)

// listPageSize bounds a single List round trip; List still reads the whole
// collection.
const listPageSize = 300

// Config selects the project, database and credentials.
type Config struct {
	ProjectID string
	// Database defaults to "(default)".
	Database string
	// EmulatorHost (host:port) targets the Firestore emulator without auth.
	EmulatorHost string
	// CredentialsJSON or CredentialsFile hold service account credentials.
	// With neither set, Application Default Credentials are used.
	CredentialsJSON string
	CredentialsFile string
}

type Store struct {
	svc    *fs.Service
	parent string
}

var _ docstore.Store = (*Store)(nil)

// New builds a Store from cfg. Extra client options are appended last and
// win over the ones derived from cfg.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Store, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("missing Firestore project id")
	}
	if cfg.Database == "" {
		cfg.Database = "(default)"
	}

	base, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := fs.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create firestore service: %w", err)
	}

	slog.InfoContext(ctx, "Firestore service created",
		"project_id", cfg.ProjectID,
		"database", cfg.Database,
		"emulator", cfg.EmulatorHost != "")

	return &Store{
		svc:    svc,
		parent: fmt.Sprintf("projects/%s/databases/%s/documents", cfg.ProjectID, cfg.Database),
	}, nil
}

func clientOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	if cfg.EmulatorHost != "" {
		return []goption.ClientOption{
			goption.WithEndpoint("http://" + cfg.EmulatorHost + "/"),
			goption.WithoutAuthentication(),
		}, nil
	}

	opts := []goption.ClientOption{goption.WithScopes(fs.DatastoreScope)}
	switch {
	case cfg.CredentialsJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		opts = append(opts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts, goption.WithCredentialsJSON(data))
	default:
		slog.InfoContext(ctx, "Using application default credentials")
	}
	return opts, nil
}

// List reads every page of the collection.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	var (
		docs  []docstore.Document
		token string
	)
	for {
		call := s.svc.Projects.Databases.Documents.List(s.parent, collection).
			PageSize(listPageSize).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, docstore.Unavailable("list documents", err)
		}
		for _, d := range resp.Documents {
			if d == nil {
				continue
			}
			docs = append(docs, docstore.Document{ID: documentID(d.Name), Fields: decodeFields(d.Fields)})
		}
		if resp.NextPageToken == "" {
			return docs, nil
		}
		token = resp.NextPageToken
	}
}

// Create lets Firestore assign the document id.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	values, err := encodeFields(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	doc, err := s.svc.Projects.Databases.Documents.
		CreateDocument(s.parent, collection, &fs.Document{Fields: values}).
		Context(ctx).
		Do()
	if err != nil {
		return "", docstore.Unavailable("create document", err)
	}
	id := documentID(doc.Name)
	if id == "" {
		return "", docstore.Unavailable("create document", fmt.Errorf("response without document name"))
	}
	return id, nil
}

// Delete removes the document. Firestore treats a missing document as
// success when no precondition is set.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return fmt.Errorf("invalid document id %q", id)
	}
	name := s.parent + "/" + collection + "/" + id
	if _, err := s.svc.Projects.Databases.Documents.Delete(name).Context(ctx).Do(); err != nil {
		return docstore.Unavailable("delete document", err)
	}
	return nil
}

// documentID returns the last segment of a full document resource name.
func documentID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
