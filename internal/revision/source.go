// Package revision lists the recorded revisions of a document and fetches
// their full bodies. The playback engine never talks to it directly; it only
// feeds manifest building.
package revision

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"revision-replay/internal/textutil"
)

// UnknownAuthor is used when a revision has no author information at all.
const UnknownAuthor = "Unknown"

// ErrDocumentNotFound is returned when the source has no revisions index for
// the requested document.
var ErrDocumentNotFound = xerrors.New("document not found")

// Revision is one recorded state of a document. Text is the full body at
// that revision, not a delta.
type Revision struct {
	ID           string
	ModifiedTime time.Time
	Author       string
	Text         string
}

// Source yields the revisions of a document ordered by ModifiedTime.
type Source interface {
	List(ctx context.Context, docID string) ([]Revision, error)
}

// indexFile is the first page of a document's revision index.
const indexFile = "revisions.json"

// page is one page of a revision index. NextPageToken names the next page
// file in the same directory; empty means last page.
type page struct {
	Revisions     []entry `json:"revisions"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

type entry struct {
	ID                    string `json:"id"`
	ModifiedTime          string `json:"modifiedTime"`
	// ModifiedDate is the older name of ModifiedTime.
	ModifiedDate          string `json:"modifiedDate,omitempty"`
	LastModifyingUserName string `json:"lastModifyingUserName,omitempty"`
	LastModifyingUser     *struct {
		DisplayName string `json:"displayName"`
	} `json:"lastModifyingUser,omitempty"`
	// File is the export location of the body, relative to the document
	// directory. Defaults to "<id>.txt".
	File string `json:"file,omitempty"`
}

func (e entry) author() string {
	if s := strings.TrimSpace(e.LastModifyingUserName); s != "" {
		return s
	}
	if e.LastModifyingUser != nil {
		if s := strings.TrimSpace(e.LastModifyingUser.DisplayName); s != "" {
			return s
		}
	}
	return UnknownAuthor
}

func (e entry) modified() string {
	if e.ModifiedTime != "" {
		return e.ModifiedTime
	}
	return e.ModifiedDate
}

func (e entry) file() string {
	if e.File != "" {
		return e.File
	}
	return e.ID + ".txt"
}

// DirSource reads revisions from a directory tree:
//
//	<root>/<docID>/revisions.json   index (first page)
//	<root>/<docID>/<page token>     further index pages
//	<root>/<docID>/<file>           revision bodies
type DirSource struct {
	root string
	fsys fs.FS
}

// NewDirSource returns a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir, fsys: os.DirFS(dir)}
}

// List implements Source. Index pages are followed until the page token is
// empty; bodies are fetched in one batch and normalised to UTF-8 with LF line
// endings.
func (s *DirSource) List(ctx context.Context, docID string) ([]Revision, error) {
	if strings.TrimSpace(docID) == "" || strings.ContainsAny(docID, `/\`) || docID == "." || docID == ".." {
		return nil, xerrors.Errorf("invalid document id %q", docID)
	}
	entries, err := s.listEntries(ctx, docID)
	if err != nil {
		return nil, err
	}

	files := make([]string, len(entries))
	for i, e := range entries {
		files[i] = e.file()
	}
	bodies, err := s.FetchBatch(ctx, docID, files)
	if err != nil {
		return nil, err
	}

	revs := make([]Revision, 0, len(entries))
	for i, e := range entries {
		ts, err := time.Parse(time.RFC3339Nano, e.modified())
		if err != nil {
			return nil, xerrors.Errorf("revision %s: modifiedTime %q: %w", e.ID, e.modified(), err)
		}
		revs = append(revs, Revision{
			ID:           e.ID,
			ModifiedTime: ts.UTC(),
			Author:       e.author(),
			Text:         bodies[i],
		})
	}
	sort.SliceStable(revs, func(i, j int) bool { return revs[i].ModifiedTime.Before(revs[j].ModifiedTime) })
	return revs, nil
}

func (s *DirSource) listEntries(ctx context.Context, docID string) ([]entry, error) {
	var out []entry
	seen := make(map[string]struct{})
	token := indexFile
	for token != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[token]; dup {
			return nil, xerrors.Errorf("revision index for %s loops at page %q", docID, token)
		}
		seen[token] = struct{}{}

		b, err := fs.ReadFile(s.fsys, path.Join(docID, token))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && token == indexFile {
				return nil, xerrors.Errorf("%s: %w", docID, ErrDocumentNotFound)
			}
			return nil, xerrors.Errorf("read revision page %q: %w", token, err)
		}
		var p page
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, xerrors.Errorf("parse revision page %q: %w", token, err)
		}
		out = append(out, p.Revisions...)
		token = p.NextPageToken
	}
	return out, nil
}

// FetchBatch reads the bodies of files (relative to the document directory)
// and returns them in request order.
func (s *DirSource) FetchBatch(ctx context.Context, docID string, files []string) ([]string, error) {
	out := make([]string, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := path.Clean(filepath.ToSlash(f))
		if !fs.ValidPath(name) {
			return nil, xerrors.Errorf("invalid revision file %q", f)
		}
		b, err := fs.ReadFile(s.fsys, path.Join(docID, name))
		if err != nil {
			return nil, xerrors.Errorf("fetch revision body %q: %w", f, err)
		}
		out[i] = string(textutil.NormalizeUTF8LF(b))
	}
	return out, nil
}

// Root returns the directory the source reads from.
func (s *DirSource) Root() string { return s.root }
