package threads

import (
	"strings"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// Artifacts resolves artifact references against a snapshot of image_files.
// A nil *Artifacts resolves nothing.
type Artifacts struct {
	byID map[string]domain.ArtifactRecord
}

// NewArtifacts indexes records by file id. Later duplicates are ignored.
func NewArtifacts(records []domain.ArtifactRecord) *Artifacts {
	a := &Artifacts{byID: make(map[string]domain.ArtifactRecord, len(records))}
	for _, rec := range records {
		if _, ok := a.byID[rec.FileID]; ok {
			continue
		}
		a.byID[rec.FileID] = rec
	}
	return a
}

// Resolve accepts a raw file id or an "[Image: <id>]" reference and returns
// the stored artifact, or nil when there is none.
func (a *Artifacts) Resolve(ref string) *ImageData {
	if a == nil {
		return nil
	}
	rec, ok := a.byID[artifactID(ref)]
	if !ok {
		return nil
	}
	return &ImageData{
		ContentType: rec.ContentType,
		Payload:     rec.Payload,
		Size:        rec.Size,
	}
}

func artifactID(ref string) string {
	if strings.HasPrefix(ref, "[Image:") && strings.HasSuffix(ref, "]") {
		return strings.TrimSpace(ref[len("[Image:") : len(ref)-1])
	}
	return ref
}
