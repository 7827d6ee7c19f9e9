package manifest

import (
	"strings"

	"golang.org/x/xerrors"

	"revision-replay/internal/revision"
)

// ErrNoRevisions is returned by Build when the revision list is empty.
var ErrNoRevisions = xerrors.New("no revisions provided")

// Differ computes the ordered spans that turn prev into curr.
type Differ func(prev, curr string) []Op

// Build assembles a manifest from revisions sorted chronologically. The
// first revision becomes the base text; every later revision becomes one
// delta diffed against its predecessor.
func Build(fileID string, revs []revision.Revision, differ Differ) (*Manifest, error) {
	if len(revs) == 0 {
		return nil, ErrNoRevisions
	}
	if differ == nil {
		return nil, xerrors.New("nil differ")
	}

	m := &Manifest{
		FileID:         fileID,
		TotalRevisions: len(revs),
		BaseText:       revs[0].Text,
		BaseTimestamp:  At(revs[0].ModifiedTime),
		Deltas:         make([]Delta, 0, len(revs)-1),
	}
	for i := 1; i < len(revs); i++ {
		prev, curr := revs[i-1], revs[i]
		author := curr.Author
		if strings.TrimSpace(author) == "" {
			author = UnknownAuthor
		}
		m.Deltas = append(m.Deltas, Delta{
			RevID:     curr.ID,
			Timestamp: At(curr.ModifiedTime),
			Author:    author,
			Ops:       differ(prev.Text, curr.Text),
		})
	}
	return m, nil
}
